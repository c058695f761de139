package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.jpl.nasa.gov/bdube/flicam/fli"
	"github.jpl.nasa.gov/bdube/flicam/fli/ext/thermalguard"
	"github.jpl.nasa.gov/bdube/flicam/fli/flisim"
	"github.jpl.nasa.gov/bdube/flicam/imgrec"
	"github.jpl.nasa.gov/bdube/flicam/util"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "2"

	// ConfigFileName is what it sounds like
	ConfigFileName = "flicam.yml"
	k              = koanf.New(".")
)

type recorder struct {
	// Root is the root folder to write to
	Root string `yaml:"Root"`

	// Prefix is the filename prefix to use
	Prefix string `yaml:"Prefix"`
}

type roi struct {
	XMin   int `yaml:"XMin"`
	YMin   int `yaml:"YMin"`
	Width  int `yaml:"Width"`
	Height int `yaml:"Height"`
	BinX   int `yaml:"BinX"`
	BinY   int `yaml:"BinY"`
}

type config struct {
	Camera              string   `yaml:"Camera"`
	Frames              int      `yaml:"Frames"`
	ExposureSec         float64  `yaml:"ExposureSec"`
	TemperatureSetpoint float64  `yaml:"TemperatureSetpoint"`
	BitDepth            int      `yaml:"BitDepth"`
	ShutterOpen         bool     `yaml:"ShutterOpen"`
	ROI                 roi      `yaml:"ROI"`
	WarmOnExit          bool     `yaml:"WarmOnExit"`
	WarmStepSec         float64  `yaml:"WarmStepSec"`
	Recorder            recorder `yaml:"Recorder"`
}

func setupconfig() {
	k.Load(structs.Provider(config{
		Camera:              "first",
		Frames:              1,
		ExposureSec:         0.1,
		TemperatureSetpoint: -15,
		BitDepth:            16,
		ShutterOpen:         true,
		ROI:                 roi{},
		WarmOnExit:          false,
		WarmStepSec:         60,
		Recorder:            recorder{Root: "data", Prefix: "flicam-"}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `flicam runs scripted capture sequences on FLI cooled cameras.
It configures cooling, exposure, bit depth, and region of interest,
then takes a number of frames and records them as FITS files in
dated folders.

Usage:
	flicam <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `flicam is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.  Keys are not case-sensitive.
The command mkconf generates the configuration file with the default values.

Camera 'first' opens the first camera the library enumerates; otherwise the value
is matched against the identifiers from the device list.

An all-zero ROI means the full visible area at 1x1 binning.  Offsets and sizes are
in binned pixels relative to the visible area.

This binary drives the software simulation camera.  Real hardware requires the
cgo adapter for libfli, which links against the vendor library.

WarmOnExit walks the detector back to +20C before the device is closed, at 5C per
WarmStepSec seconds, so a deeply cooled sensor is not released cold.`
	fmt.Println(str)
}

func mkconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	err = yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("flicam version %v\n", Version)
}

func run() {
	cfg := config{}
	k.Unmarshal("", &cfg)

	lib := flisim.New()
	log.Println("driving the software simulation camera")

	var cam *fli.CameraUnit
	var err error
	if cfg.Camera == "first" {
		cam, err = fli.OpenFirst(lib)
	} else {
		cam, err = fli.Open(lib, cfg.Camera)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer cam.Close()
	info := cam.Info()
	defer info.Close()

	model, err := cam.Model()
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("connected to %s s/n %s, %dx%d px", model, cam.Serial(), info.CCDWidth(), info.CCDHeight())

	if err := cam.SetTemperature(cfg.TemperatureSetpoint); err != nil {
		log.Fatal(err)
	}
	if err := cam.SetBpp(fli.Bpp(cfg.BitDepth)); err != nil {
		log.Fatal(err)
	}
	if err := cam.SetShutterOpen(cfg.ShutterOpen); err != nil {
		log.Fatal(err)
	}
	if err := cam.SetExposure(util.SecsToDuration(cfg.ExposureSec)); err != nil {
		log.Fatal(err)
	}
	applied, err := cam.SetROI(fli.ROI{
		XMin: cfg.ROI.XMin, YMin: cfg.ROI.YMin,
		Width: cfg.ROI.Width, Height: cfg.ROI.Height,
		BinX: cfg.ROI.BinX, BinY: cfg.ROI.BinY})
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("readout geometry %v", applied)

	rec := &imgrec.Recorder{Root: cfg.Recorder.Root, Prefix: cfg.Recorder.Prefix}

	spinner, err := yacspin.New(yacspin.Config{
		Frequency: 100 * time.Millisecond,
		CharSet:   yacspin.CharSets[59],
		Suffix:    " capturing",
	})
	if err != nil {
		log.Fatal(err)
	}
	spinner.Start()
	for i := 0; i < cfg.Frames; i++ {
		spinner.Message(fmt.Sprintf("frame %d/%d", i+1, cfg.Frames))
		f, err := cam.CaptureFrame()
		if err != nil {
			spinner.Stop()
			log.Fatal(err)
		}
		if err := rec.Record(f); err != nil {
			spinner.Stop()
			log.Fatal(err)
		}
		temp, _ := info.Temperature()
		power, _ := info.CoolerPower()
		spinner.Message(fmt.Sprintf("frame %d/%d  det %.1fC cooler %.0f%%", i+1, cfg.Frames, temp, power))
	}
	spinner.Stop()
	log.Printf("recorded %d frames under %s", cfg.Frames, cfg.Recorder.Root)

	if cfg.WarmOnExit {
		log.Println("walking the detector warm before close")
		g := thermalguard.Guardian{Cam: info, Interval: util.SecsToDuration(cfg.WarmStepSec)}
		if err := g.Save(nil); err != nil {
			log.Println(err)
		}
	}
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
