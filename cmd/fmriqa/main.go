package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fmriqa/pkg/config"
	"fmriqa/pkg/qa"
)

var (
	outdir     string
	maskFile   string
	motionFile string
	configPath string
	noPlots    bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "fmriqa",
	Short: "Per-scan quality assessment for motion-corrected fMRI",
	Long: `fmriqa computes quality metrics for a motion-corrected 4-D fMRI series:
framewise displacement, DVARS, timepoint and voxelwise statistics, slice-wise
spike detection, scrubbing indices and nuisance confound matrices.

Examples:
  fmriqa run sub01/run1_mcf.nii.gz 2.0             # QA with default companions
  fmriqa run run1_mcf.nii.gz 2.0 --outdir qa_out    # write QA/ under qa_out
  fmriqa config init fmriqa.yaml                    # write the default config`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run <infile> <TR>",
	Short: "Run QA on a motion-corrected series",
	Long: `Run QA on a series named XXX_mcf.nii.gz with repetition time TR in seconds.

The brain mask defaults to XXX_mcf_brain_mask.nii.gz and the realignment
parameters to XXX_mcf.par, both next to the series. Results are written to
<outdir>/QA, where outdir defaults to the directory of the series.`,
	Args: cobra.ExactArgs(2),
	RunE: runQA,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage fmriqa configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write the default configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.CreateDefaultConfigFile(args[0]); err != nil {
			return err
		}
		log.WithField("path", args[0]).Info("wrote default configuration")
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&outdir, "outdir", "", "Directory under which QA/ is created (default: input directory)")
	runCmd.Flags().StringVar(&maskFile, "mask", "", "Brain mask image (default: XXX_mcf_brain_mask.nii.gz)")
	runCmd.Flags().StringVar(&motionFile, "motion", "", "Realignment parameters (default: XXX_mcf.par)")
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML configuration file")
	runCmd.Flags().BoolVar(&noPlots, "no-plots", false, "Skip rendering figures")

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
}

func runQA(cmd *cobra.Command, args []string) error {
	tr, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("%w: TR must be a number, got %q", qa.ErrMalformedInput, args[1])
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if noPlots {
		cfg.Output.Plot = false
	}
	if verbose || cfg.Output.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	runner := qa.NewRunner(&qa.Params{
		Infile:     args[0],
		TR:         tr,
		Outdir:     outdir,
		MaskFile:   maskFile,
		MotionFile: motionFile,
		Config:     cfg,
	})

	start := time.Now()
	if err := runner.Process(); err != nil {
		return err
	}

	res := runner.GetResult()
	log.WithFields(log.Fields{
		"qadir":   res.Paths.QADir,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("results written")
	return nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("fmriqa failed")
		if qa.IsInputError(err) {
			fmt.Fprintln(os.Stderr, runCmd.Long)
		}
		os.Exit(2)
	}
}
