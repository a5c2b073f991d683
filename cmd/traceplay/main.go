// command traceplay decodes an event trace byte stream read live from
// a serial device, or from a previously captured trace file, printing
// the timeline as newline-delimited JSON. With -gpio it instead samples real
// GPIO lines directly, running the analyzer and decoder together in
// software with no dedicated serializer hardware in between.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"

	"eventtrace.dev/ingress"
	"eventtrace.dev/sink"
	"eventtrace.dev/trace"
	"eventtrace.dev/trace/trsim"
)

var (
	serialDev    = flag.String("device", "", "serial device carrying the trace byte stream; empty tries OS defaults")
	decodeFile   = flag.String("decode", "", "decode a captured trace file instead of opening a device")
	relative     = flag.Bool("relative", false, "decode using relative (per-burst) timestamps")
	widths       = flag.String("widths", "8", "comma-separated event source widths, e.g. 8,8,0")
	gpioPins     = flag.String("gpio", "", "semicolon-separated source:pulse[:data1,data2,...] GPIO pin names for live software capture with no serializer device, e.g. 0:GPIO4;1:GPIO5:GPIO6,GPIO13")
	gpioInterval = flag.Duration("gpio-interval", time.Millisecond, "polling interval between simulated clock cycles in -gpio mode")
)

func main() {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "traceplay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	sources, err := parseSources(*widths)
	if err != nil {
		return err
	}

	if *decodeFile != "" {
		return decode(sources, *decodeFile)
	}
	if *gpioPins != "" {
		return captureGPIO(sources)
	}
	return capture(sources)
}

func parseSources(spec string) ([]trace.EventSource, error) {
	var sources []trace.EventSource
	for idx, field := range strings.Split(spec, ",") {
		width, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("invalid width %q: %w", field, err)
		}
		sources = append(sources, trace.EventSource{Name: fmt.Sprintf("src%d", idx), Width: width})
	}
	return sources, nil
}

func parseGPIOPins(spec string) ([]ingress.GPIOPin, error) {
	var pins []ingress.GPIOPin
	for _, entry := range strings.Split(spec, ";") {
		fields := strings.Split(entry, ":")
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("invalid gpio pin spec %q: want source:pulse[:data1,data2,...]", entry)
		}
		src, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid gpio source index %q: %w", fields[0], err)
		}
		pulse, err := lookupGPIOPin(fields[1])
		if err != nil {
			return nil, err
		}
		var data []ingress.Pin
		if len(fields) == 3 {
			for _, name := range strings.Split(fields[2], ",") {
				p, err := lookupGPIOPin(name)
				if err != nil {
					return nil, err
				}
				data = append(data, p)
			}
		}
		pins = append(pins, ingress.GPIOPin{Source: src, Pulse: pulse, Data: data})
	}
	return pins, nil
}

func decode(sources []trace.EventSource, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := trace.NewDecoder(sources, trace.DecoderConfig{RelativeTimestamps: *relative})
	if err := dec.Process(data); err != nil {
		return err
	}
	records := dec.Flush(true)
	enc := json.NewEncoder(os.Stdout)
	for _, rec := range records {
		if err := enc.Encode(rec.Map()); err != nil {
			return err
		}
	}
	return nil
}

func capture(sources []trace.EventSource) error {
	dev, err := sink.OpenSerial(*serialDev)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer dev.Close()

	log.Printf("traceplay: reading from %s", *serialDev)
	r := bufio.NewReader(dev)
	dec := trace.NewDecoder(sources, trace.DecoderConfig{RelativeTimestamps: *relative})
	buf := make([]byte, 4096)
	enc := json.NewEncoder(os.Stdout)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if derr := dec.Process(buf[:n]); derr != nil {
				return derr
			}
			for _, rec := range dec.Flush(false) {
				if err := enc.Encode(rec.Map()); err != nil {
					return err
				}
			}
		}
		if err != nil {
			return err
		}
		if dec.IsDone() {
			for _, rec := range dec.Flush(true) {
				if err := enc.Encode(rec.Map()); err != nil {
					return err
				}
			}
			return nil
		}
	}
}

func lookupGPIOPin(name string) (ingress.Pin, error) {
	p := gpioreg.ByName(strings.TrimSpace(name))
	if p == nil {
		return nil, fmt.Errorf("unknown gpio pin %q", name)
	}
	return p, nil
}

// captureGPIO runs the analyzer, a GPIOSource, and a decoder together
// in software, polling real GPIO lines once per simulated cycle
// instead of reading an already-serialized byte stream off a device.
func captureGPIO(sources []trace.EventSource) error {
	if err := ingress.InitHost(); err != nil {
		return fmt.Errorf("init host: %w", err)
	}
	pins, err := parseGPIOPins(*gpioPins)
	if err != nil {
		return err
	}
	src, err := ingress.NewGPIOSource(pins)
	if err != nil {
		return fmt.Errorf("configure gpio source: %w", err)
	}
	sim, err := trsim.New(sources, 4096, trace.Options{}, src)
	if err != nil {
		return fmt.Errorf("new simulator: %w", err)
	}

	log.Printf("traceplay: polling gpio every %s", *gpioInterval)
	enc := json.NewEncoder(os.Stdout)
	for {
		if err := sim.Tick(); err != nil {
			return err
		}
		for _, rec := range sim.Flush(false) {
			if err := enc.Encode(rec.Map()); err != nil {
				return err
			}
		}
		time.Sleep(*gpioInterval)
	}
}
