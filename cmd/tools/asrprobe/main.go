// Command asrprobe streams a local audio file through the transcription
// session layer and prints every provider event and the final transcripts.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/parley-ai/parley/backend/internal/config"
	"github.com/parley-ai/parley/backend/internal/service/asr"
	"github.com/parley-ai/parley/backend/internal/service/transcription"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "asrprobe"})

var rootCmd = &cobra.Command{
	Use:   "asrprobe",
	Short: "Exercise the realtime transcription providers from the command line",
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream a PCM or WAV file through a transcription session",
	RunE:  runStream,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("provider", "", "transcription provider (elevenlabs or volcengine)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level")
	viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	streamCmd.Flags().String("audio", "", "path to a 16-bit mono PCM or WAV file")
	streamCmd.Flags().Int("frame-samples", 4096, "samples per audio frame")
	streamCmd.Flags().Int("sample-rate", transcription.DefaultSampleRate, "sample rate of raw PCM input")
	streamCmd.Flags().Bool("realtime", true, "pace frames at the audio's real duration")
	streamCmd.Flags().Duration("wait", 5*time.Second, "how long to wait for transcripts after commit")
	streamCmd.MarkFlagRequired("audio")
	viper.BindPFlag("frame_samples", streamCmd.Flags().Lookup("frame-samples"))
	viper.BindPFlag("sample_rate", streamCmd.Flags().Lookup("sample-rate"))
	viper.BindPFlag("realtime", streamCmd.Flags().Lookup("realtime"))
	viper.BindPFlag("wait", streamCmd.Flags().Lookup("wait"))

	rootCmd.AddCommand(streamCmd)
}

func initConfig() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "err", err)
	}

	viper.SetEnvPrefix("asrprobe")
	viper.AutomaticEnv()

	if level, err := log.ParseLevel(viper.GetString("log_level")); err == nil {
		logger.SetLevel(level)
	}
}

func runStream(cmd *cobra.Command, args []string) error {
	audioPath, _ := cmd.Flags().GetString("audio")
	frameSamples := viper.GetInt("frame_samples")
	if frameSamples <= 0 {
		return fmt.Errorf("frame-samples must be positive")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if provider := viper.GetString("provider"); provider != "" {
		cfg.Transcription.Provider = provider
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		return fmt.Errorf("read audio: %w", err)
	}
	pcm, sampleRate, err := decodePCM(data, viper.GetInt("sample_rate"))
	if err != nil {
		return err
	}

	dialer, err := asr.NewDialer(cfg.Transcription, logger.WithPrefix("asr"))
	if err != nil {
		return err
	}
	registry := transcription.NewRegistry(dialer, transcription.Options{
		SessionTimeout: cfg.Transcription.SessionTimeout,
		PartialWindow:  cfg.Transcription.PartialWindow,
		Logger:         logger.WithPrefix("sessions"),
	})
	defer registry.CloseAll()
	svc := transcription.NewService(registry)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sessionID, err := svc.Open(ctx)
	if err != nil {
		return err
	}
	logger.Info("session opened", "session", sessionID, "provider", cfg.Transcription.Provider, "sample_rate", sampleRate)

	frames := splitFrames(pcm, frameSamples)
	frameDuration := time.Duration(frameSamples) * time.Second / time.Duration(sampleRate)
	realtime := viper.GetBool("realtime")

	for i, frame := range frames {
		warning, err := svc.SendAudio(ctx, sessionID, base64.StdEncoding.EncodeToString(frame), sampleRate)
		if err != nil {
			return fmt.Errorf("send frame %d: %w", i, err)
		}
		if warning != "" {
			logger.Warn("provider fault", "frame", i, "warning", warning)
		}
		if realtime {
			time.Sleep(frameDuration)
		}
	}
	logger.Info("audio sent", "frames", len(frames))

	if err := svc.Commit(ctx, sessionID); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	wait := viper.GetDuration("wait")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}

	snap, err := svc.Transcripts(sessionID)
	if err != nil {
		return err
	}
	printTranscripts(sessionID, snap.Transcripts)
	if snap.ProviderFault != nil {
		logger.Warn("session ended with provider fault", "kind", snap.ProviderFault.Kind, "message", snap.ProviderFault.Message)
	}

	svc.Close(sessionID)
	return nil
}

func printTranscripts(sessionID string, transcripts []string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Transcript"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetCaption(true, fmt.Sprintf("session %s, %d segments", sessionID, len(transcripts)))

	for i, text := range transcripts {
		table.Append([]string{fmt.Sprintf("%d", i+1), text})
	}
	table.Render()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("asrprobe failed", "err", err)
		os.Exit(1)
	}
}
