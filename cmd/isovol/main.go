// Command-line interface to isosurface extraction from density volumes.
// Provides map inspection, local and offloaded extraction, and the worker daemon.

package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/janelia-flyem/isovol/isovol"
	"github.com/janelia-flyem/isovol/mrc"
	"github.com/janelia-flyem/isovol/offload"
	"github.com/janelia-flyem/isovol/registry"
	"github.com/janelia-flyem/isovol/surface"
)

const version = "1.0.0"

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Path to a TOML configuration file.
	configFile = flag.String("config", "", "")

	// Isosurface level in map density units.
	isolevel = flag.Float64("isolevel", math.NaN(), "")

	// Isosurface level in RMS deviations above the mean.
	sigma = flag.Float64("sigma", math.NaN(), "")

	// Number of volume-preserving smoothing passes.
	smooth = flag.Int("smooth", 0, "")

	// Center of a restricted extraction region, "x,y,z" in world units.
	center = flag.String("center", "", "")

	// Edge length of the restricted extraction region in world units.
	size = flag.Float64("size", 0, "")

	// Output STL path.  Defaults to the map filename with an .stl extension.
	output = flag.String("o", "", "")

	// Comma-separated worker addresses for offloaded extraction.
	workers = flag.String("workers", "", "")

	// Listen address for the worker daemon.
	address = flag.String("address", "", "")

	// Number of logical CPUs to use.
	useCPU = flag.Int("numcpu", 0, "")
)

const helpMessage = `
isovol extracts isosurfaces from CCP4/MRC density volumes

Usage: isovol [options] <command>

      -config     =string   Path to TOML configuration file.
      -isolevel   =number   Isosurface level in map density units.
      -sigma      =number   Isosurface level in RMS deviations above the mean.
      -smooth     =number   Number of volume-preserving smoothing passes.
      -center     =string   Region center as "x,y,z" in world units.
      -size       =number   Region half-edge in world units.
      -o          =string   Output STL file.  Defaults to <map>.stl.
      -workers    =string   Comma-separated worker addresses to offload to.
      -address    =string   Listen address for the worker daemon.
      -numcpu     =number   Number of logical CPUs to use.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Commands:

	about
	help
	info    <map file>
	extract <map file>
	worker
`

// processRegistry tracks the volumes this process holds in memory.
var processRegistry = registry.New()

// workerDaemon is set while the worker command serves, for shutdown.
var workerDaemon *offload.Worker

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() { fmt.Print(helpMessage) }
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Arg(0)) == "help" {
		*showHelp = true
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	if *runVerbose {
		isovol.Verbose = true
	}
	if *configFile != "" {
		if err := LoadConfig(*configFile); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}
	if *useCPU != 0 {
		runtime.GOMAXPROCS(*useCPU)
	}

	// Capture ctrl+c and other interrupts.  Then handle graceful shutdown.
	stopSig := make(chan os.Signal, 1)
	go func() {
		for sig := range stopSig {
			isovol.Infof("Stop signal captured: %q.  Shutting down...\n", sig)
			if workerDaemon != nil {
				workerDaemon.Stop()
			}
			isovol.Shutdown()
			time.Sleep(time.Second)
			os.Exit(0)
		}
	}()
	signal.Notify(stopSig, os.Interrupt, syscall.SIGTERM)

	if err := DoCommand(flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// DoCommand serves as a switchboard for commands.
func DoCommand(args []string) error {
	switch strings.ToLower(args[0]) {
	case "about":
		fmt.Printf("isovol version: %s\nGo runtime:     %s\n", version, runtime.Version())
	case "info":
		return DoInfo(args)
	case "extract":
		return DoExtract(args)
	case "worker":
		return DoWorker()
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

// DoInfo reads a map and prints its extents, statistics, and bounds.
func DoInfo(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("info command must be followed by the path to a map file")
	}
	v, err := mrc.ReadFile(args[1])
	if err != nil {
		return err
	}
	v.SetRegistry(processRegistry)
	defer v.Dispose()

	f := v.Field()
	fmt.Printf("Map:      %s\n", v.Path())
	fmt.Printf("Extents:  %d x %d x %d (%s samples)\n",
		f.NX(), f.NY(), f.NZ(), humanize.Comma(f.NumSamples()))
	fmt.Printf("Min:      %g\n", f.Min())
	fmt.Printf("Max:      %g\n", f.Max())
	fmt.Printf("Mean:     %g\n", f.Mean())
	fmt.Printf("RMS:      %g\n", f.RMS())
	fmt.Println("\nSigma     Level")
	for k := 1; k <= 5; k++ {
		fmt.Printf("  %d       %g\n", k, f.ValueForSigma(float64(k)))
	}
	box := v.BoundingBox()
	fmt.Printf("\nBounds:   (%g, %g, %g) .. (%g, %g, %g)\n",
		box.Min.X, box.Min.Y, box.Min.Z, box.Max.X, box.Max.Y, box.Max.Z)
	if h := v.Header(); h != nil {
		if min, ok := h.DefaultFilterMin(); ok {
			fmt.Printf("Default density floor: %g\n", min)
		}
	}
	return nil
}

// DoExtract reads a map, extracts an isosurface, and writes binary STL.
func DoExtract(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("extract command must be followed by the path to a map file")
	}
	path := args[1]
	v, err := mrc.ReadFile(path)
	if err != nil {
		return err
	}
	v.SetRegistry(processRegistry)
	defer v.Dispose()

	req := surface.DefaultRequest()
	switch {
	case !math.IsNaN(*isolevel) && !math.IsNaN(*sigma):
		return fmt.Errorf("-isolevel and -sigma are mutually exclusive")
	case !math.IsNaN(*isolevel):
		req.Isolevel = *isolevel
	case !math.IsNaN(*sigma):
		req.Isolevel = v.ValueForSigma(*sigma)
	}
	req.Smooth = *smooth
	if *center != "" || *size > 0 {
		if *center == "" || *size <= 0 {
			return fmt.Errorf("region restriction needs both -center and -size")
		}
		c, err := parseVec(*center)
		if err != nil {
			return err
		}
		req.Center, req.Size = c, *size
	}

	var surf *surface.Surface
	if *workers != "" {
		coord := offload.NewCoordinator(v, offload.WithWorkers(strings.Split(*workers, ",")...))
		defer coord.Close()
		res := <-coord.ExtractAsync(req)
		if res.Err != nil {
			return res.Err
		}
		surf = res.Surface
	} else {
		if surf, err = surface.NewExtractor(v).Extract(req); err != nil {
			return err
		}
	}

	out := *output
	if out == "" {
		out = strings.TrimSuffix(path, ".gz")
		out = strings.TrimSuffix(out, filepath.Ext(out)) + ".stl"
	}
	if err := surf.WriteSTLFile(out); err != nil {
		return err
	}
	fmt.Printf("Wrote %d triangles at isolevel %g to %s.\n",
		surf.TriangleCount(), surf.Isolevel, out)
	return nil
}

// DoWorker runs the extraction worker daemon until interrupted.
func DoWorker() error {
	w := offload.NewWorker(CacheSize("worker"))
	workerDaemon = w
	return w.Serve(WorkerAddress(*address))
}

func parseVec(s string) (r3.Vec, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vec{}, fmt.Errorf("expected \"x,y,z\", got %q", s)
	}
	var c [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("bad coordinate %q in %q", p, s)
		}
		c[i] = f
	}
	return r3.Vec{X: c[0], Y: c[1], Z: c[2]}, nil
}
