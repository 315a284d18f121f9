// Package config loads the GNC configuration from a YAML file, applying
// environment-variable overrides on top, following the pattern used across
// the pack for small embedded services: defaults first, file second, env
// last.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds every startup knob the pipeline needs, plus the ambient
// wiring (serial ports, HTTP, logging) a deployable service always carries.
type Config struct {
	IMU      IMUConfig      `yaml:"imu"`
	Actuator ActuatorConfig `yaml:"actuator"`
	Timing   TimingConfig   `yaml:"timing"`
	Gains    GainsConfig    `yaml:"gains"`
	Kalman   KalmanConfig   `yaml:"kalman"`
	Valve    ValveConfig    `yaml:"valve"`
	Launch   LaunchConfig   `yaml:"launch"`
	Logging  LoggingConfig  `yaml:"logging"`
	Ground   GroundConfig   `yaml:"ground"`
}

// IMUConfig configures the attitude-sensor serial link.
type IMUConfig struct {
	Port           string `yaml:"port"`
	BaudRate       int    `yaml:"baud_rate"`
	SyncRetries    int    `yaml:"sync_retries"`
	MaxConsecutiveDrops int `yaml:"max_consecutive_drops"`
}

// ActuatorConfig configures the actuator controller serial link.
type ActuatorConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// TimingConfig carries the loop periods and mission-phase durations.
type TimingConfig struct {
	ControlPeriodUS       int64 `yaml:"control_period_us"`
	EstimatorPeriodUS     int64 `yaml:"estimator_period_us"`
	CalibrationDurationUS int64 `yaml:"calibration_duration_us"`
	BurnDurationUS        int64 `yaml:"burn_duration_us"`
	ActiveWindowUS        int64 `yaml:"active_window_us"`
	DescentDurationUS     int64 `yaml:"descent_duration_us"`
	MinCalibrationSamples int   `yaml:"min_calibration_samples"`
}

// GainsConfig carries the PD/P control-law gains.
type GainsConfig struct {
	Ktheta  float64 `yaml:"k_theta"`
	TdTheta float64 `yaml:"td_theta"`
	Kpsi    float64 `yaml:"k_psi"`
	TdPsi   float64 `yaml:"td_psi"`
	Kphi    float64 `yaml:"k_phi"`
	TMax    float64 `yaml:"t_max"`
	D       float64 `yaml:"d"`
}

// SignalNoise is one (Q, R) pair for a scalar Kalman filter.
type SignalNoise struct {
	Qv float64 `yaml:"q_v"`
	Qr float64 `yaml:"q_r"`
	R  float64 `yaml:"r"`
}

// KalmanConfig holds the six scalar signals' process/measurement noise.
// Q and R are fixed design matrices, tuned offline and loaded as constants.
type KalmanConfig struct {
	Psi    SignalNoise `yaml:"psi"`
	Theta  SignalNoise `yaml:"theta"`
	Phi    SignalNoise `yaml:"phi"`
	PsiDot SignalNoise `yaml:"psi_dot"`
	ThetaDot SignalNoise `yaml:"theta_dot"`
	PhiDot SignalNoise `yaml:"phi_dot"`
}

// ValveConfig carries the calibrated monotone thrust-to-PWM table.
type ValveConfig struct {
	Thrust []float64 `yaml:"thrust"`
	PWM    []uint16  `yaml:"pwm"`
}

// LaunchConfig configures the umbilical GPIO pin.
type LaunchConfig struct {
	GPIOPin string `yaml:"gpio_pin"`
}

// LoggingConfig configures the append-only text logs and the structured
// logrus logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Output      string `yaml:"output"`
	Dir         string `yaml:"dir"`
	IMULog      string `yaml:"imu_log"`
	ControlLog  string `yaml:"control_log"`
	ErrorLog    string `yaml:"error_log"`
}

// LogrusLevel maps the configured level string to a logrus.Level,
// defaulting to Info on anything unrecognised.
func (l LoggingConfig) LogrusLevel() logrus.Level {
	switch l.Level {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// GroundConfig configures the optional HTTP/websocket ground link.
type GroundConfig struct {
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	AbortSecret string `yaml:"abort_secret"`
}

// Default returns a config with sensible sounding-rocket bench-test
// defaults.
func Default() *Config {
	return &Config{
		IMU: IMUConfig{
			Port:                "/dev/ttyIMU",
			BaudRate:            57600,
			SyncRetries:         5,
			MaxConsecutiveDrops: 20,
		},
		Actuator: ActuatorConfig{
			Port:     "/dev/ttyACT",
			BaudRate: 115200,
		},
		Timing: TimingConfig{
			ControlPeriodUS:       20_000,
			EstimatorPeriodUS:     20_000,
			CalibrationDurationUS: 5_000_000,
			BurnDurationUS:        4_000_000,
			ActiveWindowUS:        15_000_000,
			DescentDurationUS:     10_000_000,
			MinCalibrationSamples: 100,
		},
		Gains: GainsConfig{
			Ktheta:  5,
			TdTheta: 3,
			Kpsi:    5,
			TdPsi:   3,
			Kphi:    1,
			TMax:    0.2,
			D:       0.005,
		},
		Kalman: KalmanConfig{
			Psi:      SignalNoise{Qv: 0.001, Qr: 0.001, R: 0.01},
			Theta:    SignalNoise{Qv: 0.001, Qr: 0.001, R: 0.01},
			Phi:      SignalNoise{Qv: 0.001, Qr: 0.001, R: 0.01},
			PsiDot:   SignalNoise{Qv: 0.05, Qr: 0.05, R: 5000},
			ThetaDot: SignalNoise{Qv: 0.05, Qr: 0.05, R: 5000},
			PhiDot:   SignalNoise{Qv: 0.05, Qr: 0.05, R: 5000},
		},
		Valve: ValveConfig{
			Thrust: []float64{0, 0.025, 0.05, 0.075, 0.1, 0.125, 0.15, 0.175, 0.2},
			PWM:    []uint16{0, 128, 256, 384, 512, 640, 768, 896, 1023},
		},
		Launch: LaunchConfig{
			GPIOPin: "GPIO17",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     "stdout",
			Dir:        "./logs",
			IMULog:     "imu_log.tsv",
			ControlLog: "control_log.tsv",
			ErrorLog:   "error_log.tsv",
		},
		Ground: GroundConfig{
			HTTPAddr:    ":8090",
			MetricsAddr: ":9090",
			AbortSecret: "",
		},
	}
}

// Load reads cfg from a YAML file, falling back to Default() when the file
// cannot be read, then applies environment-variable overrides. A file that
// exists but does not parse is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		cfg.applyEnvOverrides()
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets operators override the serial ports and ground
// secret without editing the YAML file, matching the pack's .env-style
// override convention.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GNC_IMU_PORT"); v != "" {
		c.IMU.Port = v
	}
	if v := os.Getenv("GNC_ACTUATOR_PORT"); v != "" {
		c.Actuator.Port = v
	}
	if v := os.Getenv("GNC_ABORT_SECRET"); v != "" {
		c.Ground.AbortSecret = v
	}
	if v := os.Getenv("GNC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GNC_HTTP_ADDR"); v != "" {
		c.Ground.HTTPAddr = v
	}
	if v := os.Getenv("GNC_CONTROL_PERIOD_US"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Timing.ControlPeriodUS = n
		}
	}
}

// Validate checks the structural invariants the rest of the pipeline
// assumes without re-checking: a strictly monotone valve table whose first
// thrust sample is zero, matching lengths, and positive periods.
func (c *Config) Validate() error {
	if len(c.Valve.Thrust) != len(c.Valve.PWM) {
		return fmt.Errorf("valve table: %d thrust samples vs %d pwm samples", len(c.Valve.Thrust), len(c.Valve.PWM))
	}
	if len(c.Valve.Thrust) < 2 {
		return fmt.Errorf("valve table: need at least 2 points")
	}
	if c.Valve.Thrust[0] != 0 {
		return fmt.Errorf("valve table: thrust_0 must be 0, got %v", c.Valve.Thrust[0])
	}
	for i := 1; i < len(c.Valve.Thrust); i++ {
		if c.Valve.Thrust[i] <= c.Valve.Thrust[i-1] {
			return fmt.Errorf("valve table: thrust not strictly monotone at index %d", i)
		}
	}
	if c.Timing.ControlPeriodUS <= 0 || c.Timing.EstimatorPeriodUS <= 0 {
		return fmt.Errorf("control and estimator periods must be positive")
	}
	if c.Gains.TMax <= 0 {
		return fmt.Errorf("t_max must be positive")
	}
	return nil
}
