// Package dispatch frames PWM commands and drives the half-duplex UART
// link to the actuator controller, mirroring the per-byte ack discipline
// the teacher's actuator link uses for its own wire protocol.
package dispatch

// packFrame builds the 6-byte command: a '#' marker followed by four
// 10-bit PWM values packed MSB-first into 40 bits.
func packFrame(pwm [4]uint16) [6]byte {
	p1, p2, p3, p4 := pwm[0]&0x3FF, pwm[1]&0x3FF, pwm[2]&0x3FF, pwm[3]&0x3FF

	var f [6]byte
	f[0] = '#'
	f[1] = byte(p1 >> 2)
	f[2] = byte((p1&0x3)<<6 | (p2 >> 4))
	f[3] = byte((p2&0xF)<<4 | (p3 >> 6))
	f[4] = byte((p3&0x3F)<<2 | (p4 >> 8))
	f[5] = byte(p4 & 0xFF)
	return f
}
