package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lukasbauer/habitvoice/internal/capture"
	"github.com/lukasbauer/habitvoice/internal/respond"
	"github.com/lukasbauer/habitvoice/internal/stt"
)

var (
	listenOnce   bool
	listenWAV    string
	listenEngine string
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Listen on the microphone and run each spoken command",
	RunE:  runListen,
}

func init() {
	listenCmd.Flags().BoolVar(&listenOnce, "once", false, "stop after the first utterance")
	listenCmd.Flags().StringVar(&listenWAV, "wav", "", "replay a 16kHz mono WAV file instead of the microphone")
	listenCmd.Flags().StringVar(&listenEngine, "engine", "server", "recognition engine: server (upload audio) or deepgram (stream, then send text)")
}

func runListen(cmd *cobra.Command, _ []string) error {
	if err := requireToken(); err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := newLogger()

	var mic capture.Microphone
	if listenWAV != "" {
		m, err := capture.NewWAVMicrophone(listenWAV)
		if err != nil {
			return fmt.Errorf("load %s: %w", listenWAV, err)
		}
		mic = m
		listenOnce = true
	} else {
		m, err := newMalgoMicrophone()
		if err != nil {
			return err
		}
		defer m.Close()
		mic = m
	}

	d, cleanup, err := newDispatcher(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// Speaking can take seconds, so envelopes are dispatched off the
	// recognizer's goroutine.
	envelopes := make(chan respond.Envelope, 4)
	deliver := func(env respond.Envelope) {
		select {
		case envelopes <- env:
		case <-ctx.Done():
		}
	}
	api := newAPIClient(cfg.Server, cfg.Token)

	var rec capture.Recognizer
	switch listenEngine {
	case "server":
		rec = capture.NewSegmentRecognizer(&voiceTranscriber{api: api, deliver: deliver})
	case "deepgram":
		if cfg.Deepgram.APIKey == "" {
			return fmt.Errorf("deepgram engine needs DEEPGRAM_API_KEY")
		}
		rec = stt.NewDeepgramRecognizer(stt.DeepgramConfig{
			APIKey:     cfg.Deepgram.APIKey,
			Model:      cfg.Deepgram.Model,
			Language:   cfg.Deepgram.Language,
			SampleRate: capture.SampleRate,
			Punctuate:  true,
		}, logger)
	default:
		return fmt.Errorf("unknown engine %q", listenEngine)
	}

	events := make(chan capture.Event, 16)
	sess, err := capture.New(capture.Config{
		ActivationLevel:   cfg.Capture.ActivationLevel,
		SilenceWindow:     cfg.Capture.SilenceWindow,
		HardTimeout:       cfg.Capture.HardTimeout,
		FinalizeTimeout:   cfg.Capture.FinalizeTimeout,
		ListenImmediately: cfg.Capture.ListenImmediately || listenWAV != "",
	}, mic, rec, func(ev capture.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "listening... (ctrl-c to quit)")

	// finished is set once the current utterance has an outcome;
	// awaitingReply while a text turn sent on its behalf is in flight.
	finished, awaitingReply := false, false
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-envelopes:
			awaitingReply = false
			d.Dispatch(ctx, &env)
			if finished && listenOnce {
				return nil
			}
		case ev := <-events:
			switch ev.Kind {
			case capture.EventStateChanged:
				if verbose {
					fmt.Fprintf(os.Stderr, "[%s]\n", ev.State)
				}
				if ev.State != capture.Idle || !finished {
					continue
				}
				if listenOnce {
					// the envelope for this utterance may still be queued
					if len(envelopes) == 0 && !awaitingReply {
						return nil
					}
					continue
				}
				finished = false
				if err := sess.Start(ctx); err != nil {
					return err
				}
			case capture.EventInterim:
				fmt.Fprintf(os.Stderr, "... %s\n", ev.Transcript.Text)
			case capture.EventFinal:
				fmt.Printf("you: %s\n", ev.Transcript.Text)
				finished = true
				if listenEngine == "deepgram" {
					awaitingReply = true
					go sendText(ctx, api, ev.Transcript.Text, deliver)
				}
			case capture.EventEmpty:
				fmt.Fprintln(os.Stderr, "(nothing heard)")
				finished = true
			case capture.EventError:
				finished = true
				if errors.Is(ev.Err, capture.ErrPermissionDenied) {
					return ev.Err
				}
				fmt.Fprintf(os.Stderr, "error: %v\n", ev.Err)
			}
		}
	}
}

// sendText runs a locally transcribed utterance as a chat turn.
func sendText(ctx context.Context, api *apiClient, text string, deliver func(respond.Envelope)) {
	env, err := api.Chat(ctx, text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		deliver(respond.Envelope{Reply: "Sorry, I couldn't reach the server.", Success: false})
		return
	}
	deliver(env)
}
