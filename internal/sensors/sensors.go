// Package sensors discovers hwmon temperature sensors and aggregates their
// readings into the scalar samples the control loop consumes.
package sensors

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ectherm/fancontrold/internal/control"
)

const (
	sysfsHwmonPath = "/sys/class/hwmon/"
	tempPrefix     = "temp"
	inputSuffix    = "_input"
)

// cpuSensorNames lists the hwmon chip names recognized as CPU sensors for
// TempComputeMethod == CPUOnly.
var cpuSensorNames = map[string]bool{
	"coretemp": true,
	"k10temp":  true,
}

type input struct {
	path string
}

func (i input) read() (float64, error) {
	data, err := os.ReadFile(i.path)
	if err != nil {
		return 0, err
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, err
	}
	return milli / 1000.0, nil
}

type sensor struct {
	name   string
	isCPU  bool
	inputs []input
}

// Collector enumerates hwmon sensors at construction and produces samples
// on demand; it does not poll on its own, the control loop's tick does.
type Collector struct {
	sensors []sensor
}

// NoCPUSensorError is returned by Sample when not a single discovered
// sensor could be read.
type NoCPUSensorError struct{}

func (NoCPUSensorError) Error() string { return "no CPU sensor could be opened" }

// Discover walks /sys/class/hwmon and builds a Collector. It returns an
// error only when the hwmon directory itself cannot be read; if no usable
// sensor is found, it returns an empty Collector with no error, and that
// Collector's Sample reports NoCPUSensorError.
func Discover() (*Collector, error) {
	entries, err := os.ReadDir(sysfsHwmonPath)
	if err != nil {
		return nil, err
	}

	var sensors []sensor
	for _, e := range entries {
		root := filepath.Join(sysfsHwmonPath, e.Name())
		if _, err := os.Stat(filepath.Join(root, "device")); err == nil {
			root = filepath.Join(root, "device")
		}

		nameBytes, err := os.ReadFile(filepath.Join(root, "name"))
		if err != nil {
			continue
		}
		name := strings.TrimSpace(string(nameBytes))

		inputs := discoverInputs(root)
		if len(inputs) == 0 {
			continue
		}

		sensors = append(sensors, sensor{name: name, isCPU: cpuSensorNames[name], inputs: inputs})
	}

	return &Collector{sensors: sensors}, nil
}

func discoverInputs(root string) []input {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var inputs []input
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, tempPrefix) && strings.HasSuffix(name, inputSuffix) {
			inputs = append(inputs, input{path: filepath.Join(root, name)})
		}
	}
	return inputs
}

// Sample reads every discovered sensor and returns the per-sensor mean
// temperature keyed by chip name, matching the shape control.Loop expects
// from a sensor collector. It returns NoCPUSensorError only when not a
// single sensor could be read at all; a caller driving CPUOnly mode with
// no CPU-tagged readings handles that case itself.
func (c *Collector) Sample() (control.TemperatureSample, error) {
	out := make(control.TemperatureSample, len(c.sensors))
	for _, s := range c.sensors {
		mean, err := sensorMean(s)
		if err != nil {
			continue
		}
		out[s.name] = control.SensorReading{Value: mean, IsCPU: s.isCPU}
	}
	if len(out) == 0 {
		return out, NoCPUSensorError{}
	}
	return out, nil
}

func sensorMean(s sensor) (float64, error) {
	var sum float64
	var n int
	for _, in := range s.inputs {
		v, err := in.read()
		if err != nil {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, os.ErrNotExist
	}
	return sum / float64(n), nil
}
