// Command gpio-blinker alternates two GPIO outputs in a fixed four-phase cycle
// until interrupted, then releases both pins.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/gpio-blinker/internal/gpio"
	"github.com/sweeney/gpio-blinker/internal/logic"
	"github.com/sweeney/gpio-blinker/internal/mqtt"
	"github.com/sweeney/gpio-blinker/internal/status"
	"github.com/sweeney/gpio-blinker/internal/web"
)

const (
	startupBanner  = "Blinking LEDs - press Ctrl+C to exit"
	shutdownBanner = "Shutting down..."
)

type config struct {
	pinA     int
	pinB     int
	dwell    time.Duration
	driver   string
	chip     string
	cycles   int
	broker   string
	clientID string
	httpAddr string
}

func (c config) validate() error {
	if c.pinA < 0 || c.pinB < 0 {
		return fmt.Errorf("pins must be non-negative, got %d and %d", c.pinA, c.pinB)
	}
	if c.pinA == c.pinB {
		return fmt.Errorf("pin-a and pin-b must differ, both are %d", c.pinA)
	}
	if c.dwell <= 0 {
		return fmt.Errorf("dwell must be positive, got %v", c.dwell)
	}
	if c.cycles < 0 {
		return fmt.Errorf("cycles must be >= 0, got %d", c.cycles)
	}
	return nil
}

func main() {
	var cfg config
	flag.IntVar(&cfg.pinA, "pin-a", gpio.DefaultPinA, "BCM pin driven in phases 1 and 3")
	flag.IntVar(&cfg.pinB, "pin-b", gpio.DefaultPinB, "BCM pin driven in phases 2 and 4")
	flag.DurationVar(&cfg.dwell, "dwell", 1500*time.Millisecond, "Pause between pin writes")
	flag.StringVar(&cfg.driver, "driver", "cdev", `GPIO driver ("cdev" or "periph")`)
	flag.StringVar(&cfg.chip, "chip", gpio.DefaultChip, "GPIO character device for the cdev driver")
	flag.IntVar(&cfg.cycles, "cycles", 0, "Stop after this many full cycles (0 runs until interrupted)")
	flag.StringVar(&cfg.broker, "broker", "", "MQTT broker address (empty to disable)")
	flag.StringVar(&cfg.clientID, "client-id", "gpio-blinker", "MQTT client ID")
	flag.StringVar(&cfg.httpAddr, "http", "", "HTTP status address (empty to disable)")

	flag.Parse()

	if err := cfg.validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
	open, err := opener(cfg.driver, cfg.chip)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = run(cfg, open, sigCh, os.Stdout)
	signal.Stop(sigCh)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func opener(driver, chip string) (gpio.Opener, error) {
	switch driver {
	case "cdev":
		return gpio.OpenCdev(chip), nil
	case "periph":
		return gpio.OpenPeriph(), nil
	}
	return nil, fmt.Errorf("unknown driver %q (want cdev or periph)", driver)
}

func run(cfg config, open gpio.Opener, sig <-chan os.Signal, out io.Writer) error {
	// Claim both pins; release is guaranteed on every path past this point.
	driver, err := open([]int{cfg.pinA, cfg.pinB})
	if err != nil {
		return fmt.Errorf("claim pins: %w", err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			log.Printf("release pins: %v", err)
		}
	}()

	var publisher mqtt.Publisher = mqtt.NopPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.broker != "" {
		p := mqtt.NewRealPublisher(cfg.broker, cfg.clientID)
		publisher, mqttStatus = p, p
	}
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		PinA:     cfg.pinA,
		PinB:     cfg.pinB,
		DwellMs:  cfg.dwell.Milliseconds(),
		Driver:   cfg.driver,
		Cycles:   cfg.cycles,
		Broker:   cfg.broker,
		HTTPAddr: cfg.httpAddr,
	})

	if cfg.broker != "" {
		snap := tracker.Snapshot()
		startupEvent := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startupEvent); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		}
	}

	if cfg.httpAddr != "" {
		srv := web.New(cfg.httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.httpAddr)
	}

	fmt.Fprintln(out, startupBanner)
	log.Printf("started: pin-a=%d pin-b=%d dwell=%v driver=%s cycles=%d", cfg.pinA, cfg.pinB, cfg.dwell, cfg.driver, cfg.cycles)

	ticker := time.NewTicker(cfg.dwell)
	defer ticker.Stop()

	seq := logic.NewSequencer(cfg.pinA, cfg.pinB)
	return runLoop(driver, publisher, mqttStatus, tracker, seq, cfg.cycles, time.Now, ticker.C, sig, out)
}

// runLoop performs one write per dwell tick, in sequencer order, until a
// signal arrives, maxCycles full cycles complete (0 = no limit), or a write
// fails. The pause after each write is interruptible.
func runLoop(driver gpio.Driver, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, seq *logic.Sequencer, maxCycles int, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, out io.Writer) error {
	for {
		if maxCycles > 0 && seq.Counts().Cycles >= maxCycles {
			log.Printf("completed %d cycles, shutting down", maxCycles)
			fmt.Fprintln(out, shutdownBanner)
			publishShutdown(publisher, mqttStatus, tracker, now, "CYCLES")
			return nil
		}

		cycle := seq.Cycle()
		step := seq.Peek()
		if err := driver.Set(step.Pin, step.Level.High()); err != nil {
			publishShutdown(publisher, mqttStatus, tracker, now, "ERROR")
			return fmt.Errorf("phase %d: %w", step.Phase, err)
		}
		seq.Next()

		event := step.Event(now(), cycle)
		if err := publisher.Publish(event); err != nil {
			log.Printf("publish error: %v", err)
			// Don't stop blinking on publish failure
		}
		if tracker != nil {
			tracker.RecordWrite(event, seq.Counts())
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
		}

		select {
		case s := <-sig:
			interrupted(s, publisher, mqttStatus, tracker, now, out)
			return nil
		case <-tick:
		}

		// A signal that raced the tick still wins before the next write.
		select {
		case s := <-sig:
			interrupted(s, publisher, mqttStatus, tracker, now, out)
			return nil
		default:
		}
	}
}

func interrupted(s os.Signal, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, out io.Writer) {
	log.Printf("received %v, shutting down", s)
	fmt.Fprintln(out, "\n"+shutdownBanner)
	publishShutdown(publisher, mqttStatus, tracker, now, signalName(s))
}

func publishShutdown(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, reason string) {
	event := mqtt.SystemEvent{
		Timestamp: now(),
		Event:     "SHUTDOWN",
		Reason:    reason,
		Retained:  true,
	}
	if tracker != nil {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", reason)
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
