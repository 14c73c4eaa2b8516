package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	evdev "github.com/holoplot/go-evdev"
	"github.com/logrusorgru/aurora"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/evsync/evsync/internal/pkg/device"
	"github.com/evsync/evsync/internal/pkg/event"
	"github.com/evsync/evsync/internal/pkg/hotplug"
	"github.com/evsync/evsync/internal/pkg/logger"
	"github.com/evsync/evsync/internal/pkg/reader"
)

var log = logger.GetLogger()

var (
	list       = flag.Bool("list", false, "list available event devices and exit")
	devicePath = flag.String("device", "", "event device to open (eg. /dev/input/event0)")
	configPath = flag.String("config", "./config/evsync.config", "configuration file")
	grab       = flag.Bool("grab", false, "grab the device for exclusive usage")
	snapshot   = flag.Bool("snapshot", false, "print the device state as YAML and exit")
	watch      = flag.Bool("watch", false, "watch /dev/input for devices coming and going")
	nocolor    = flag.Bool("nocolor", false, "disable color in the event dump")
	debug      = flag.Bool("debug", false, "enable debug logging")
)

func listDevices() error {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return fmt.Errorf("listing input devices failed: %w", err)
	}
	for _, p := range paths {
		fmt.Printf("%s\t%s\n", p.Path, p.Name)
	}
	return nil
}

func watchDevices(ctx context.Context) error {
	notifications, err := hotplug.Monitor(ctx)
	if err != nil {
		return fmt.Errorf("cannot watch /dev/input: %w", err)
	}
	for n := range notifications {
		fmt.Printf("%s\t%s\n", n.Action, n.Path)
	}
	return nil
}

// stateSnapshot is the YAML shape of -snapshot output.
type stateSnapshot struct {
	Device   string           `yaml:"device"`
	Keys     []event.Code     `yaml:"keys"`
	Leds     []event.Code     `yaml:"leds"`
	Sounds   []event.Code     `yaml:"sounds"`
	Switches []event.Code     `yaml:"switches"`
	Abs      map[string]int32 `yaml:"abs,omitempty"`
	Slots    []slotSnapshot   `yaml:"slots,omitempty"`
}

type slotSnapshot struct {
	Slot       int32 `yaml:"slot"`
	TrackingID int32 `yaml:"tracking_id"`
	X          int32 `yaml:"x"`
	Y          int32 `yaml:"y"`
}

func dumpSnapshot(r *reader.Reader, name string) error {
	if err := r.Update(); err != nil {
		return fmt.Errorf("state update failed: %w", err)
	}

	snap := stateSnapshot{
		Device:   name,
		Keys:     r.KeyState().Values(),
		Leds:     r.LedState().Values(),
		Sounds:   r.SoundState().Values(),
		Switches: r.SwitchState().Values(),
		Abs:      map[string]int32{},
	}
	for axis := event.Code(0); axis < event.ABS_MT_SLOT; axis++ {
		if v := r.AbsState(axis); v != 0 {
			snap.Abs[fmt.Sprintf("0x%02x", uint16(axis))] = v
		}
	}
	for _, slot := range r.ValidSlots() {
		s := slotSnapshot{Slot: slot}
		s.TrackingID, _ = r.SlotValue(slot, event.ABS_MT_TRACKING_ID)
		s.X, _ = r.SlotValue(slot, event.ABS_MT_POSITION_X)
		s.Y, _ = r.SlotValue(slot, event.ABS_MT_POSITION_Y)
		snap.Slots = append(snap.Slots, s)
	}

	out, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func colorize(ev event.Event, au aurora.Aurora) aurora.Value {
	s := ev.String()
	switch ev.Type {
	case event.EV_SYN:
		if ev.Code == event.SYN_DROPPED {
			return au.Red(s)
		}
		return au.Gray(8, s)
	case event.EV_KEY:
		if ev.Value != 0 {
			return au.Green(s)
		}
		return au.Yellow(s)
	case event.EV_ABS:
		return au.Cyan(s)
	case event.EV_LED, event.EV_SND:
		return au.Magenta(s)
	default:
		return au.White(s)
	}
}

func dumpEvents(r *reader.Reader, color bool) error {
	au := aurora.NewAurora(color)
	for {
		report, err := r.ReadReport()
		if err != nil {
			return err
		}
		for _, ev := range report {
			t := ev.Time()
			fmt.Printf("%d.%06d  %s\n", t.Unix(), ev.Usec, colorize(ev, au))
		}
	}
}

func run() error {
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *devicePath != "" {
		cfg.Device.Path = *devicePath
	}
	if *grab {
		cfg.Device.Grab = true
	}
	if *nocolor {
		cfg.Dump.Color = false
	}
	if cfg.Device.Path == "" {
		return fmt.Errorf("no device given, use -device or the config file (-list shows candidates)")
	}

	h, err := device.Open(cfg.Device.Path)
	if err != nil {
		return err
	}
	defer h.Close()

	name, err := h.Name()
	if err != nil {
		return err
	}
	log.Info("device opened",
		zap.String("device_path", cfg.Device.Path), zap.String("device_name", name))

	if cfg.Device.Grab {
		if err := h.Grab(); err != nil {
			return fmt.Errorf("cannot grab %s: %w", cfg.Device.Path, err)
		}
		defer h.Ungrab()
	}
	if cfg.Device.Nonblocking {
		if _, err := h.SetNonblock(true); err != nil {
			return err
		}
	}

	r, err := reader.New(h)
	if err != nil {
		return err
	}

	if *snapshot {
		return dumpSnapshot(r, name)
	}
	return dumpEvents(r, cfg.Dump.Color)
}

func main() {
	flag.Parse()
	if *debug {
		logger.EnableDebug()
	}

	var sigs = make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-sigs
		log.Info("signal received", zap.String("signal", sig.String()))
		cancel()
		<-sigs
		fmt.Println("Dirty exit")
		os.Exit(1)
	}()

	var err error
	switch {
	case *list:
		err = listDevices()
	case *watch:
		err = watchDevices(ctx)
	default:
		// The dump loop sits in a blocking read; exiting on the signal
		// goroutine's second delivery is the escape hatch there.
		go func() {
			<-ctx.Done()
			os.Exit(0)
		}()
		err = run()
	}
	if err != nil && err != device.ErrWouldBlock {
		log.Error("exiting", zap.Error(err))
		os.Exit(1)
	}
}
