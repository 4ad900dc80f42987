package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"

	"github.com/ekisa-team/flamingo/internal/app"
	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/ekisa-team/flamingo/internal/config"
	"github.com/ekisa-team/flamingo/internal/env"
	"github.com/ekisa-team/flamingo/internal/logger"
	"github.com/spf13/cobra"
)

var (
	audioPath  string
	videoPath  string
	configPath string
	schemaPath string
	asJSON     bool
	verbose    bool
	params     = avsr.DefaultParams()
)

var rootCmd = &cobra.Command{
	Use:   "flamingo-decode",
	Short: "Transcribe one audio/video pair offline",
	Long: `flamingo-decode runs a single transcription with the same pipeline as the
Flamingo server and prints the text.

Examples:
  flamingo-decode --audio clip.wav --video clip.mp4 --lang en
  flamingo-decode --audio clip.wav --modalities asr --noise-snr 0 --noise-fn noise/test.tsv`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDecode,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&audioPath, "audio", "", "16 kHz mono 16-bit WAV file")
	f.StringVar(&videoPath, "video", "", "lip video file")
	f.StringVar(&params.Language, "lang", params.Language, "language code or auto")
	f.StringVar(&params.Modalities, "modalities", params.Modalities, "avsr, asr or vsr")
	f.StringVar(&params.Task, "task", params.Task, "transcribe, translate, X-En or En-X")
	f.IntVar(&params.BeamSize, "beam-size", params.BeamSize, "beam width, 1 is greedy")
	f.IntVar(&params.NoiseSNR, "noise-snr", params.NoiseSNR, "noise SNR in dB, 100 or more disables noise")
	f.StringVar(&params.NoiseManifest, "noise-fn", "", "noise manifest file")
	f.StringVar(&params.CheckpointPath, "checkpoint", "", "checkpoint under the models directory")
	f.BoolVar(&params.FP16, "fp16", false, "half precision decoding")
	f.StringVar(&configPath, "config", path.Join(config.DefaultConfigPath(), "config.yaml"), "config file, defaults are used when missing")
	f.StringVar(&schemaPath, "schema", "", "schema file (embedded schema when empty)")
	f.BoolVar(&asJSON, "json", false, "print the full result as JSON")
	f.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func runDecode(cmd *cobra.Command, _ []string) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(logger.New(env.FromEnv(), logger.WithLevel(level)))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Cache.Enabled = false

	req := &avsr.Request{Params: params}
	if audioPath != "" {
		data, err := os.ReadFile(audioPath)
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
		req.Audio = data
	}
	req.Video = videoPath

	a, err := app.New(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Transcriber.Transcribe(cmd.Context(), req)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Text)
	return err
}

func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(configPath); err != nil {
		return config.Default(), nil
	}
	return config.LoadAndValidate(configPath, schemaPath)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
