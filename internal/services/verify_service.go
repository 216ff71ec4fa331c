// Package services wires the verifier's collaborators together: it
// opens the database file, builds the session from configuration, runs
// the structural verification and collects the results into a report.
package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/deploymenttheory/go-bstore/internal/cache"
	"github.com/deploymenttheory/go-bstore/internal/device"
	"github.com/deploymenttheory/go-bstore/internal/types"
	"github.com/deploymenttheory/go-bstore/internal/verify"
)

// VerifyOptions controls one verification run.
type VerifyOptions struct {
	// Path is the database file to verify.
	Path string

	// Config is the handle configuration the file must match; nil
	// loads it from the bstore configuration sources.
	Config *verify.Config

	// Progress, when set, receives periodic page counts.
	Progress func(name string, count uint64)

	// Dump, when set, receives a one-line rendering of each verified
	// page.
	Dump io.Writer
}

// Report is the outcome of a verification run.
type Report struct {
	// RunID uniquely identifies the run in logs.
	RunID string

	// Path and FileSize describe the verified file.
	Path     string
	FileSize int64

	// Pages is the number of pages verified.
	Pages uint64

	// Problems holds every message the verifier reported, in the
	// order found.
	Problems []string

	// Err is the first structural error, or nil if the file is sound.
	Err error

	// Duration is the wall-clock time the run took.
	Duration time.Duration
}

// Valid reports whether the file verified clean.
func (r *Report) Valid() bool {
	return r.Err == nil
}

// LoadConfig builds a handle configuration from the bstore
// configuration sources: a bstore-config file if one is present, the
// BSTORE_* environment, and built-in defaults.
func LoadConfig() (*verify.Config, error) {
	v := viper.New()
	v.SetConfigName("bstore-config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.bstore")
	v.AddConfigPath("/etc/bstore")

	defaults := verify.DefaultConfig()
	v.SetDefault("alloc_size", defaults.AllocSize)
	v.SetDefault("intl_min", defaults.IntlMin)
	v.SetDefault("intl_max", defaults.IntlMax)
	v.SetDefault("leaf_min", defaults.LeafMin)
	v.SetDefault("leaf_max", defaults.LeafMax)
	v.SetDefault("fixed_len", defaults.FixedLen)
	v.SetDefault("repeat_compression", false)

	v.SetEnvPrefix("BSTORE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine, the defaults stand.
	}

	cfg := &verify.Config{
		AllocSize: v.GetUint32("alloc_size"),
		IntlMin:   v.GetUint32("intl_min"),
		IntlMax:   v.GetUint32("intl_max"),
		LeafMin:   v.GetUint32("leaf_min"),
		LeafMax:   v.GetUint32("leaf_max"),
		FixedLen:  v.GetUint32("fixed_len"),
	}
	if v.GetBool("repeat_compression") {
		cfg.Flags |= types.DescRepeatComp
	}
	return cfg, nil
}

// VerifyFile runs a structural verification of the database file at
// opts.Path and returns a report. The returned error covers failures
// to run at all; structural problems are reported in Report.Err and
// Report.Problems.
func VerifyFile(ctx context.Context, opts VerifyOptions) (*Report, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := LoadConfig()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	dev, err := device.Open(opts.Path)
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	report := &Report{
		RunID:    uuid.New().String(),
		Path:     opts.Path,
		FileSize: dev.Size(),
	}

	log := logrus.WithFields(logrus.Fields{
		"run_id": report.RunID,
		"path":   opts.Path,
		"size":   units.HumanSize(float64(dev.Size())),
	})
	log.Info("verifying database file")

	manager := cache.NewManager(dev, cfg.AllocSize)
	sess := &verify.Session{
		Config:   cfg,
		Pages:    manager,
		FileSize: uint64(dev.Size()),
		Report: func(format string, args ...interface{}) {
			report.Problems = append(report.Problems, fmt.Sprintf(format, args...))
		},
		Progress: func(name string, count uint64) {
			report.Pages = count
			if opts.Progress != nil {
				opts.Progress(name, count)
			}
		},
	}

	start := time.Now()
	report.Err = verify.Verify(ctx, sess, opts.Dump)
	report.Duration = time.Since(start)

	if leaked := manager.Outstanding(); leaked != 0 {
		log.WithField("pins", leaked).Warn("pages left pinned after verification")
	}
	if report.Err != nil {
		log.WithError(report.Err).WithField("problems", len(report.Problems)).
			Error("database file failed verification")
	} else {
		log.WithFields(logrus.Fields{
			"pages":    report.Pages,
			"duration": report.Duration,
		}).Info("database file verified")
	}
	return report, nil
}
