package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gaspardpetit/voicerelay/internal/api"
	"github.com/gaspardpetit/voicerelay/internal/ollama"
	"github.com/gaspardpetit/voicerelay/internal/tts"
)

func newSayCmd() *cobra.Command {
	req := tts.Request{Text: api.DefaultSpeechText, Lang: tts.DefaultLang, TLD: tts.DefaultTLD}
	var out string
	cmd := &cobra.Command{
		Use:   "say [text]",
		Short: "Synthesize speech to an MP3 file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				req.Text = args[0]
			}
			norm, err := req.Normalize()
			if err != nil {
				return err
			}
			audio, err := tts.NewEngine(cfg.TTS).Synthesize(cmd.Context(), norm)
			if err != nil {
				return err
			}
			if len(audio) == 0 {
				return tts.ErrEmptyAudio
			}
			return writeAudio(cmd, out, audio)
		},
	}
	cmd.Flags().StringVar(&req.Text, "text", req.Text, "text to speak")
	cmd.Flags().StringVar(&req.Lang, "lang", req.Lang, "language code")
	cmd.Flags().StringVar(&req.TLD, "tld", req.TLD, "top level domain of the speech endpoint, selects the accent")
	cmd.Flags().BoolVar(&req.Slow, "slow", false, "speak slowly")
	cmd.Flags().StringVarP(&out, "out", "o", "speech.mp3", "output file, - for stdout")
	return cmd
}

func writeAudio(cmd *cobra.Command, out string, audio []byte) error {
	var w io.Writer = cmd.OutOrStdout()
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	for chunk := range tts.Chunks(audio, tts.ChunkSize) {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}
	if out != "-" {
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(audio), out)
	}
	return nil
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models available on the Ollama service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ModelsTimeout)
			defer cancel()
			names, err := ollama.New(cfg.OllamaBaseURL).ModelNames(ctx)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List the languages accepted by the speech engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			langs := tts.Languages()
			codes := make([]string, 0, len(langs))
			for code := range langs {
				codes = append(codes, code)
			}
			sort.Strings(codes)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, code := range codes {
				fmt.Fprintf(tw, "%s\t%s\n", code, langs[code])
			}
			return tw.Flush()
		},
	}
}

func newVoicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "voices [locale]",
		Short: "List the voices offered by the edge engine, optionally filtered by locale prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			list, err := tts.EdgeVoices(cmd.Context(), cfg.TTS.Proxy, prefix)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, v := range list {
				fmt.Fprintf(tw, "%s\t%s\n", v.ShortName, v.Locale)
			}
			return tw.Flush()
		},
	}
}
