// servoctl is a command line utility for Feetech serial bus servos:
// discover ports, scan the bus, ping servos, read status, and move them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/neka-nat/feetech-servo-go/feetech"
	"github.com/neka-nat/feetech-servo-go/transports"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to yaml config file")
		port       = flag.String("port", "", "serial port path (overrides config)")
		logLevel   = flag.String("log-level", "", "trace, debug, info, warn or error (overrides config)")
	)
	flag.Usage = usage
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log := newLogger(cfg.LogLevel)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	if err := run(log, cfg, args[0], args[1:]); err != nil {
		log.Fatal().Err(err).Str("command", args[0]).Msg("command failed")
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: servoctl [flags] <command> [args]

commands:
  ports                list serial ports
  scan [start end]     probe servo ids (default 0 253)
  discover             broadcast ping discovery (STS only)
  ping <id>            ping one servo
  status <id>          read a servo's feedback registers
  move <id> <pos>      enable torque and move to position
  reboot <id>          reboot a servo

flags:
`)
	flag.PrintDefaults()
}

func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.TimeOnly,
	}).Level(parsed).With().Timestamp().Logger()
}

func run(log zerolog.Logger, cfg Config, command string, args []string) error {
	ctx := context.Background()

	if command == "ports" {
		ports, err := transports.ListPorts()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}

	if cfg.Port == "" {
		return fmt.Errorf("no serial port configured (use -port or a config file)")
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		Protocol: cfg.ProtocolVersion(),
		Timeout:  cfg.Timeout(),
		Logger:   &log,
	})
	if err != nil {
		return err
	}
	defer bus.Close()

	model, _ := feetech.ModelByName(cfg.Model)

	switch command {
	case "scan":
		start, end, err := scanRange(args)
		if err != nil {
			return err
		}

		log.Info().Int("start", start).Int("end", end).Msg("scanning bus")
		found, err := bus.Scan(ctx, start, end)
		if err != nil {
			return err
		}
		for _, f := range found {
			name := "unknown"
			if m, ok := f.Model(); ok {
				name = m.String()
			}
			fmt.Printf("id=%d model=%s number=%d firmware=%d\n", f.ID, name, f.ModelNumber, f.FirmwareVersion)
		}
		log.Info().Int("found", len(found)).Msg("scan complete")
		return nil

	case "discover":
		found, err := bus.Discover(ctx)
		if err != nil {
			return err
		}
		for _, f := range found {
			name := "unknown"
			if m, ok := f.Model(); ok {
				name = m.String()
			}
			fmt.Printf("id=%d model=%s number=%d\n", f.ID, name, f.ModelNumber)
		}
		log.Info().Int("found", len(found)).Msg("discovery complete")
		return nil

	case "ping":
		id, err := argID(args)
		if err != nil {
			return err
		}
		result, err := bus.Ping(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("id=%d model=%d firmware=%d\n", result.ID, result.ModelNumber, result.FirmwareVersion)
		return nil

	case "status":
		id, err := argID(args)
		if err != nil {
			return err
		}
		servo := feetech.NewServo(bus, id, model)
		status, err := servo.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("position=%d speed=%d load=%d voltage=%.1fV temp=%dC moving=%v\n",
			status.Position, status.Speed, status.Load,
			float64(status.VoltageTenths)/10, status.Temperature, status.Moving)
		return nil

	case "move":
		if len(args) != 2 {
			return fmt.Errorf("move needs <id> <position>")
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("bad id: %w", err)
		}
		pos, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad position: %w", err)
		}

		servo := feetech.NewServo(bus, id, model)
		if err := servo.Enable(ctx); err != nil {
			return err
		}
		if err := servo.SetPosition(ctx, pos); err != nil {
			return err
		}
		log.Info().Int("id", id).Int("position", pos).Msg("move commanded")
		return nil

	case "reboot":
		id, err := argID(args)
		if err != nil {
			return err
		}
		return bus.Reboot(ctx, id)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// scanRange parses optional [start end] arguments, defaulting to the full
// unicast id space.
func scanRange(args []string) (start, end int, err error) {
	start, end = 0, feetech.MaxServoID
	if len(args) != 2 {
		return start, end, nil
	}

	if start, err = strconv.Atoi(args[0]); err != nil {
		return 0, 0, fmt.Errorf("bad start id: %w", err)
	}
	if end, err = strconv.Atoi(args[1]); err != nil {
		return 0, 0, fmt.Errorf("bad end id: %w", err)
	}
	return start, end, nil
}

func argID(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one servo id argument")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("bad id: %w", err)
	}
	return id, nil
}
