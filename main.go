package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/carlmjohnson/versioninfo"
	"github.com/iancoleman/strcase"
	"github.com/shiena/ansicolor"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"

	"tiledgeojson/simplify"
	"tiledgeojson/store"
)

const (
	LODS       = `lods`
	TILESIZES  = `tile-sizes`
	SIMPLIFY   = `simplify`
	CONFIG     = `config`
	WORKERS    = `workers`
	FORMAT     = `format`
	ENGINE     = `engine`
	MAPSHAPER  = `mapshaper`
	PROGRESS   = `progress`
	VERBOSE    = `verbose`
	envPrefix  = `tiledgeojson_`
	defaultCfg = `conf.toml`
)

func init() {
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		FieldsOrder:     []string{"task", "lod"},
	})
	log.SetOutput(ansicolor.NewAnsiColorWriter(os.Stdout))
	log.SetLevel(log.InfoLevel)
}

// initConf loads the optional TOML config file and registers defaults.
func initConf(cfgFile string) {
	viper.SetDefault("output.format", string(store.Files))
	viper.SetDefault("task.workers", 4)
	viper.SetDefault("task.progress", false)
	viper.SetDefault("simplify.engine", string(simplify.EngineBuiltin))
	viper.SetDefault("simplify.mapshaper", simplify.DefaultMapshaper)
	viper.AutomaticEnv()

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		log.Debugf("config file(%s) not exist", cfgFile)
		return
	}
	viper.SetConfigType("toml")
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		log.Warnf("read config file(%s) error, details: %s", viper.ConfigFileUsed(), err)
	}
}

func envVars(name string) []string {
	return []string{strcase.ToScreamingSnake(envPrefix + name)}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "tiledgeojson"
	app.Usage = "Split a GeoJSON file into content addressed tiles, one grid per level of detail"
	app.ArgsUsage = "<inputFile> <outputDir>"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    LODS,
			Aliases: []string{"l"},
			Usage:   "comma separated list of levels of detail (max zoom per LOD, -1 keeps full detail)",
			EnvVars: envVars(LODS),
		},
		&cli.StringFlag{
			Name:    TILESIZES,
			Aliases: []string{"s"},
			Usage:   "comma separated list of tile sizes, one per LOD",
			EnvVars: envVars(TILESIZES),
		},
		&cli.BoolFlag{
			Name:    SIMPLIFY,
			Usage:   "simplify and quantize geometry for LODs with a zoom >= 0",
			EnvVars: envVars(SIMPLIFY),
		},
		&cli.StringFlag{
			Name:    CONFIG,
			Aliases: []string{"c"},
			Usage:   "config `file`",
			Value:   defaultCfg,
			EnvVars: envVars(CONFIG),
		},
		&cli.IntFlag{
			Name:    WORKERS,
			Aliases: []string{"w"},
			Usage:   "grid columns filtered in parallel (task.workers)",
			EnvVars: envVars(WORKERS),
		},
		&cli.StringFlag{
			Name:    FORMAT,
			Aliases: []string{"f"},
			Usage:   "tile store: files or sqlite (output.format)",
			EnvVars: envVars(FORMAT),
		},
		&cli.StringFlag{
			Name:    ENGINE,
			Usage:   "simplify engine: builtin or mapshaper (simplify.engine)",
			EnvVars: envVars(ENGINE),
		},
		&cli.StringFlag{
			Name:    MAPSHAPER,
			Usage:   "mapshaper executable (simplify.mapshaper)",
			EnvVars: envVars(MAPSHAPER),
		},
		&cli.BoolFlag{
			Name:    PROGRESS,
			Usage:   "show a progress bar per LOD (task.progress)",
			EnvVars: envVars(PROGRESS),
		},
		&cli.BoolFlag{
			Name:    VERBOSE,
			Usage:   "debug logging",
			EnvVars: envVars(VERBOSE),
		},
	}

	app.Action = func(c *cli.Context) error {
		if c.NArg() != 2 {
			return fmt.Errorf("expected <inputFile> <outputDir>, got %d arguments", c.NArg())
		}
		if c.Bool(VERBOSE) {
			log.SetLevel(log.DebugLevel)
		}
		initConf(c.String(CONFIG))

		opts, err := optionsFromContext(c)
		if err != nil {
			return err
		}
		fc, err := loadFeatureCollection(opts.Input)
		if err != nil {
			return err
		}
		task, err := NewTask(opts)
		if err != nil {
			return err
		}
		_, err = task.Run(c.Context, fc)
		return err
	}
	return app
}

// optionsFromContext merges flags over the config file. Flags win when set.
func optionsFromContext(c *cli.Context) (Options, error) {
	lods, err := parseLODs(c.String(LODS), c.String(TILESIZES))
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		Input:     c.Args().Get(0),
		Output:    c.Args().Get(1),
		LODs:      lods,
		Simplify:  c.Bool(SIMPLIFY),
		Engine:    simplify.Engine(viper.GetString("simplify.engine")),
		Mapshaper: viper.GetString("simplify.mapshaper"),
		Format:    store.Format(viper.GetString("output.format")),
		Workers:   viper.GetInt("task.workers"),
		Progress:  viper.GetBool("task.progress"),
	}
	if c.IsSet(ENGINE) {
		opts.Engine = simplify.Engine(c.String(ENGINE))
	}
	if c.IsSet(MAPSHAPER) {
		opts.Mapshaper = c.String(MAPSHAPER)
	}
	if c.IsSet(FORMAT) {
		opts.Format = store.Format(c.String(FORMAT))
	}
	if c.IsSet(WORKERS) {
		opts.Workers = c.Int(WORKERS)
	}
	if c.IsSet(PROGRESS) {
		opts.Progress = c.Bool(PROGRESS)
	}
	return opts, nil
}

// valueFlags take an argument when not written as --name=value.
var valueFlags = map[string]bool{
	LODS: true, "l": true,
	TILESIZES: true, "s": true,
	CONFIG: true, "c": true,
	WORKERS: true, "w": true,
	FORMAT: true, "f": true,
	ENGINE: true, MAPSHAPER: true,
}

// flagsFirst moves flags in front of positional arguments so that
// `tiledgeojson in.json out --lods 8,12` parses like the flags came first.
func flagsFirst(args []string) []string {
	if len(args) == 0 {
		return args
	}
	out := []string{args[0]}
	var positional []string
	for i := 1; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(arg) < 2 || !strings.HasPrefix(arg, "-") {
			positional = append(positional, arg)
			continue
		}
		out = append(out, arg)
		name := strings.TrimLeft(arg, "-")
		if !strings.Contains(name, "=") && valueFlags[name] && i+1 < len(args) {
			i++
			out = append(out, args[i])
		}
	}
	if len(positional) > 0 {
		out = append(out, "--")
		out = append(out, positional...)
	}
	return out
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, flagsFirst(os.Args)); err != nil {
		log.Fatal(err)
	}
}
