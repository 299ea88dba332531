package driver

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// DefaultWorkers is the default number of driver workers.
	DefaultWorkers = 1
	// DefaultConnections is the default number of async channels.
	DefaultConnections = 1
	// DefaultCollectionInterval is the statistics collection interval, also
	// used as the rate limiter interval when a max rate is configured
	// without an explicit interval.
	DefaultCollectionInterval = 1 * time.Second
	// DefaultSelectionMode is the default async channel selection mode.
	DefaultSelectionMode = "round-robin"
	// DefaultMaxOutstanding is the default bound on in-flight async operations.
	DefaultMaxOutstanding = 1024
)

const (
	// ParamWorkers is the name of the parameter with the number of workers.
	ParamWorkers = "workers"
	// ParamConnections is the name of the parameter with the number of async connections.
	ParamConnections = "connections"
	// ParamSelectionMode is the name of the parameter with the async connection selection mode.
	ParamSelectionMode = "selection-mode"
	// ParamMaxOutstanding is the name of the parameter bounding in-flight async operations.
	ParamMaxOutstanding = "max-outstanding"
	// ParamFirstRecordNumber is the name of the parameter with the first record number.
	ParamFirstRecordNumber = "first-record-number"
	// ParamLastRecordNumber is the name of the parameter with the last record number.
	ParamLastRecordNumber = "last-record-number"
	// ParamDuration is the name of the parameter with the job run length.
	ParamDuration = "duration"
	// ParamWarmUp is the name of the parameter with the warm-up period.
	ParamWarmUp = "warm-up"
	// ParamCoolDown is the name of the parameter with the cool-down period.
	ParamCoolDown = "cool-down"
	// ParamMaxRate is the name of the parameter with the maximum operation rate per interval.
	ParamMaxRate = "max-rate"
	// ParamRateInterval is the name of the parameter with the rate limiter interval.
	ParamRateInterval = "rate-interval"
	// ParamTimeBetweenRequests is the name of the parameter with the minimum delay between requests.
	ParamTimeBetweenRequests = "time-between-requests"
	// ParamResponseTimeThreshold is the name of the parameter with the response time threshold.
	ParamResponseTimeThreshold = "response-time-threshold"
	// ParamTimeBetweenPhases is the name of the parameter with the settle delay between job phases.
	ParamTimeBetweenPhases = "time-between-phases"
	// ParamSeed is the name of the parameter with the random seed.
	ParamSeed = "seed"
)

// AddFlags adds the driver parameters to the flag set.
func AddFlags(fs *pflag.FlagSet) {
	fs.Int(ParamWorkers, DefaultWorkers, "Number of worker goroutines driving operations")
	fs.Int(ParamConnections, DefaultConnections, "Number of connections for asynchronous jobs")
	fs.String(ParamSelectionMode, DefaultSelectionMode, "Async connection selection: round-robin or fewest-outstanding")
	fs.Int(ParamMaxOutstanding, DefaultMaxOutstanding, "Maximum in-flight async operations")
	fs.Int64(ParamFirstRecordNumber, 0, "First record number for templated jobs")
	fs.Int64(ParamLastRecordNumber, 0, "Last record number for templated jobs")
	fs.Duration(ParamDuration, 0, "How long to run the job (0 = until interrupted)")
	fs.Duration(ParamWarmUp, 0, "Warm-up period before statistics collection starts")
	fs.Duration(ParamCoolDown, 0, "Cool-down period before the end of the run during which statistics are not collected")
	fs.Int(ParamMaxRate, 0, "Maximum operations per rate interval (0 = unlimited)")
	fs.Duration(ParamRateInterval, 0, "Rate limiter interval (defaults to the statistics collection interval)")
	fs.Duration(ParamTimeBetweenRequests, 0, "Minimum delay between consecutive requests per worker")
	fs.Duration(ParamResponseTimeThreshold, 0, "Count operations slower than this as threshold breaches (0 = disabled)")
	fs.Duration(ParamTimeBetweenPhases, 0, "Settle delay between the phases of a two-phase job")
	fs.Int64(ParamSeed, 0, "Random seed (0 = derive from the clock)")
}

// NewConfigFromViper builds the scalar part of a driver Config from
// configuration.  The caller supplies the executor, template and logger.
func NewConfigFromViper(v *viper.Viper) Config {
	return Config{
		Workers:               v.GetInt(ParamWorkers),
		FirstRecordNumber:     v.GetInt64(ParamFirstRecordNumber),
		LastRecordNumber:      v.GetInt64(ParamLastRecordNumber),
		Duration:              v.GetDuration(ParamDuration),
		WarmUp:                v.GetDuration(ParamWarmUp),
		CoolDown:              v.GetDuration(ParamCoolDown),
		MaxRate:               v.GetInt(ParamMaxRate),
		RateInterval:          v.GetDuration(ParamRateInterval),
		TimeBetweenRequests:   v.GetDuration(ParamTimeBetweenRequests),
		ResponseTimeThreshold: v.GetDuration(ParamResponseTimeThreshold),
		Seed:                  v.GetInt64(ParamSeed),
	}
}
