package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/atlassian/loadrig"
	"github.com/atlassian/loadrig/internal/util"
	"github.com/atlassian/loadrig/pkg/driver"
	"github.com/atlassian/loadrig/pkg/replay"
	"github.com/atlassian/loadrig/pkg/stats"
	"github.com/atlassian/loadrig/pkg/target"
	"github.com/atlassian/loadrig/pkg/template"
)

const (
	// ParamVerbose enables verbose logging.
	ParamVerbose = "verbose"
	// ParamJSON makes the logger log in JSON format.
	ParamJSON = "json"
	// ParamConfigPath provides a file with configuration.
	ParamConfigPath = "config-path"
	// ParamVersion makes the program output its version.
	ParamVersion = "version"

	// ParamMode selects the job type.
	ParamMode = "mode"
	// ParamTemplatePath is the record template file for templated jobs.
	ParamTemplatePath = "template-file"
	// ParamCapturePath is the capture file for replay jobs.
	ParamCapturePath = "capture-file"
	// ParamTargetAddress is the endpoint operations are sent to.
	ParamTargetAddress = "target-address"
	// ParamTargetNetwork is the network of the target endpoint.
	ParamTargetNetwork = "target-network"
	// ParamDialTimeout bounds target connection establishment.
	ParamDialTimeout = "dial-timeout"
	// ParamWriteTimeout bounds a single request write.
	ParamWriteTimeout = "write-timeout"
	// ParamPreserveTiming makes replay follow the capture's timing.
	ParamPreserveTiming = "preserve-timing"
	// ParamTimingMultiplier scales the capture's inter-record delays.
	ParamTimingMultiplier = "timing-multiplier"
	// ParamFixedDelay is the inter-record delay when not preserving timing.
	ParamFixedDelay = "fixed-delay"
	// ParamMaxRecordsPerSecond caps replay throughput.
	ParamMaxRecordsPerSecond = "max-records-per-second"
	// ParamPasses is how many times replay walks the capture.
	ParamPasses = "passes"
	// ParamReportInterval is how often progress is logged.
	ParamReportInterval = "report-interval"

	modeSync     = "sync"
	modeTwoPhase = "two-phase"
	modeAsync    = "async"
	modeReplay   = "replay"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	v, version, err := setupConfiguration()
	if err != nil {
		if err == pflag.ErrHelp {
			return
		}
		logrus.Fatalf("Error while parsing configuration: %v", err)
	}
	if version {
		fmt.Printf("Version: %s - Commit: %s - Date: %s\n", Version, GitCommit, BuildDate)
		return
	}
	if err := run(v); err != nil {
		logrus.Fatalf("%v", err)
	}
}

func run(v *viper.Viper) error {
	logger := logrus.StandardLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	exec, err := newExecutor(v, logger)
	if err != nil {
		return err
	}
	defer exec.Close()

	job, err := constructJob(v, logger, exec)
	if err != nil {
		return err
	}

	logger.WithField("mode", v.GetString(ParamMode)).Info("Starting job")

	runCtx, stopReporter := context.WithCancel(ctx)
	var wg wait.Group
	wg.StartWithContext(runCtx, (&stats.Reporter{
		Logger:   logger,
		Interval: v.GetDuration(ParamReportInterval),
		Sets:     job.trackers,
	}).Run)

	err = job.run(ctx)
	stopReporter()
	wg.Wait()
	if err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	job.summarize(logger)
	return nil
}

// job pairs a runnable driver with accessors for its statistics; each mode
// wires them differently.
type job struct {
	run       func(ctx context.Context) error
	trackers  func() []*loadrig.TrackerSet
	summarize func(logger logrus.FieldLogger)
}

func constructJob(v *viper.Viper, logger logrus.FieldLogger, exec *target.Executor) (*job, error) {
	mode := v.GetString(ParamMode)
	switch mode {
	case modeSync:
		cfg := driver.NewConfigFromViper(v)
		cfg.Logger = logger
		cfg.Executor = exec
		tmpl, err := loadTemplate(v)
		if err != nil {
			return nil, err
		}
		if tmpl == nil {
			return nil, fmt.Errorf("--%s is required for %s mode", ParamTemplatePath, modeSync)
		}
		cfg.Template = tmpl
		d, err := driver.New(cfg)
		if err != nil {
			return nil, err
		}
		return &job{
			run:      d.Run,
			trackers: d.Trackers,
			summarize: func(logger logrus.FieldLogger) {
				stats.LogSummary(logger, "run", d.Trackers())
			},
		}, nil

	case modeTwoPhase:
		cfg := driver.NewConfigFromViper(v)
		cfg.Logger = logger
		cfg.Executor = exec
		tmpl, err := loadTemplate(v)
		if err != nil {
			return nil, err
		}
		if tmpl == nil {
			return nil, fmt.Errorf("--%s is required for %s mode", ParamTemplatePath, modeTwoPhase)
		}
		cfg.Template = tmpl
		d, err := driver.NewTwoPhase(driver.TwoPhaseConfig{
			Config:           cfg,
			PhaseTwoExecutor: exec,
			PhaseTwoPrepare:  removalRequest,
			SettleDelay:      v.GetDuration(driver.ParamTimeBetweenPhases),
		})
		if err != nil {
			return nil, err
		}
		return &job{
			run: d.Run,
			trackers: func() []*loadrig.TrackerSet {
				return append(d.PhaseOneTrackers(), d.PhaseTwoTrackers()...)
			},
			summarize: func(logger logrus.FieldLogger) {
				stats.LogSummary(logger, "phase-one", d.PhaseOneTrackers())
				stats.LogSummary(logger, "phase-two", d.PhaseTwoTrackers())
			},
		}, nil

	case modeAsync:
		cfg := driver.NewConfigFromViper(v)
		cfg.Logger = logger
		tmpl, err := loadTemplate(v)
		if err != nil {
			return nil, err
		}
		if tmpl == nil {
			return nil, fmt.Errorf("--%s is required for %s mode", ParamTemplatePath, modeAsync)
		}
		cfg.Template = tmpl
		selection, err := driver.ParseSelectionMode(v.GetString(driver.ParamSelectionMode))
		if err != nil {
			return nil, err
		}
		channels, err := newChannels(v, logger)
		if err != nil {
			return nil, err
		}
		d, err := driver.NewAsync(driver.AsyncConfig{
			Config:         cfg,
			Channels:       channels,
			SelectionMode:  selection,
			MaxOutstanding: v.GetInt(driver.ParamMaxOutstanding),
		})
		if err != nil {
			return nil, err
		}
		return &job{
			run:      d.Run,
			trackers: d.Trackers,
			summarize: func(logger logrus.FieldLogger) {
				stats.LogSummary(logger, "run", d.Trackers())
			},
		}, nil

	case modeReplay:
		capturePath := v.GetString(ParamCapturePath)
		if capturePath == "" {
			return nil, fmt.Errorf("--%s is required for %s mode", ParamCapturePath, modeReplay)
		}
		requests, err := replay.ReadCaptureFile(capturePath)
		if err != nil {
			return nil, err
		}
		d, err := replay.New(replay.Config{
			Logger:                logger,
			Executor:              exec,
			Requests:              requests,
			PreserveTiming:        v.GetBool(ParamPreserveTiming),
			TimingMultiplier:      v.GetFloat64(ParamTimingMultiplier),
			FixedDelay:            v.GetDuration(ParamFixedDelay),
			MaxRecordsPerSecond:   v.GetFloat64(ParamMaxRecordsPerSecond),
			Passes:                v.GetInt(ParamPasses),
			Workers:               v.GetInt(driver.ParamWorkers),
			Duration:              v.GetDuration(driver.ParamDuration),
			WarmUp:                v.GetDuration(driver.ParamWarmUp),
			CoolDown:              v.GetDuration(driver.ParamCoolDown),
			ResponseTimeThreshold: v.GetDuration(driver.ParamResponseTimeThreshold),
		})
		if err != nil {
			return nil, err
		}
		return &job{
			run:      d.Run,
			trackers: d.Trackers,
			summarize: func(logger logrus.FieldLogger) {
				stats.LogSummary(logger, "replay", d.Trackers())
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

func newExecutor(v *viper.Viper, logger logrus.FieldLogger) (*target.Executor, error) {
	return target.New(target.Config{
		Logger:       logger,
		Address:      v.GetString(ParamTargetAddress),
		Network:      v.GetString(ParamTargetNetwork),
		DialTimeout:  v.GetDuration(ParamDialTimeout),
		WriteTimeout: v.GetDuration(ParamWriteTimeout),
	})
}

func newChannels(v *viper.Viper, logger logrus.FieldLogger) ([]loadrig.Channel, error) {
	n := v.GetInt(driver.ParamConnections)
	if n <= 0 {
		n = driver.DefaultConnections
	}
	channels := make([]loadrig.Channel, n)
	for i := range channels {
		exec, err := newExecutor(v, logger.WithField("connection", i))
		if err != nil {
			return nil, err
		}
		channels[i] = target.NewExecutorChannel(exec)
	}
	return channels, nil
}

func loadTemplate(v *viper.Viper) (*template.Template, error) {
	path := v.GetString(ParamTemplatePath)
	if path == "" {
		return nil, nil
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	tmpl, err := template.CompileText(string(text))
	if err != nil {
		return nil, fmt.Errorf("compiling template %s: %w", path, err)
	}
	return tmpl, nil
}

// removalRequest builds the phase-two request that undoes the creation of
// the numbered record.
func removalRequest(recordNumber int64, _ *rand.Rand) (*loadrig.Request, error) {
	return &loadrig.Request{Payload: []byte(fmt.Sprintf("delete %d\n", recordNumber))}, nil
}

func setupConfiguration() (*viper.Viper, bool, error) {
	v := viper.New()
	defer setupLogger(v) // Apply logging configuration in case of early exit
	util.InitViper(v)

	var version bool

	cmd := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)

	cmd.BoolVar(&version, ParamVersion, false, "Print the version and exit")
	cmd.Bool(ParamVerbose, false, "Verbose")
	cmd.Bool(ParamJSON, false, "Log in JSON format")
	cmd.String(ParamConfigPath, "", "Path to the configuration file")

	cmd.String(ParamMode, modeSync, "Job type: sync, two-phase, async or replay")
	cmd.String(ParamTemplatePath, "", "Path to the record template file")
	cmd.String(ParamCapturePath, "", "Path to the capture file for replay mode")
	cmd.String(ParamTargetAddress, "", "host:port operations are sent to")
	cmd.String(ParamTargetNetwork, "tcp", "Network of the target endpoint")
	cmd.Duration(ParamDialTimeout, 10*time.Second, "Timeout for target connection establishment, including retries")
	cmd.Duration(ParamWriteTimeout, 0, "Timeout for a single request write (0 = none)")
	cmd.Bool(ParamPreserveTiming, false, "Replay with the capture's inter-record timing")
	cmd.Float64(ParamTimingMultiplier, 1.0, "Scale factor for preserved capture timing")
	cmd.Duration(ParamFixedDelay, 0, "Inter-record delay when not preserving capture timing")
	cmd.Float64(ParamMaxRecordsPerSecond, 0, "Replay throughput ceiling (0 = none)")
	cmd.Int(ParamPasses, 0, "Replay passes over the capture (0 = until duration elapses)")
	cmd.Duration(ParamReportInterval, 10*time.Second, "How often to log progress")

	driver.AddFlags(cmd)

	cmd.VisitAll(func(flag *pflag.Flag) {
		if err := v.BindPFlag(flag.Name, flag); err != nil {
			panic(err) // Should never happen
		}
	})

	if err := cmd.Parse(os.Args[1:]); err != nil {
		return nil, false, err
	}

	configPath := v.GetString(ParamConfigPath)
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, false, err
		}
	}

	return v, version, nil
}

func setupLogger(v *viper.Viper) {
	if v.GetBool(ParamVerbose) {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if v.GetBool(ParamJSON) {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
