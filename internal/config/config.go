package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service settings, populated from a YAML file with
// HMS_-prefixed environment overrides. It is built once at process start and
// passed by parameter; nothing reads configuration at import time.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Paths     PathsConfig     `mapstructure:"paths"`
	URLs      URLsConfig      `mapstructure:"urls"`
	Download  DownloadConfig  `mapstructure:"download"`
	Import    ImportConfig    `mapstructure:"import"`
	Jython    JythonConfig    `mapstructure:"jython"`
	HMS       HMSConfig       `mapstructure:"hms"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	AllowOrigins    string        `mapstructure:"allow_origins"`
	BodyLimitMB     int           `mapstructure:"body_limit_mb"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	FlowCacheSize   int           `mapstructure:"flow_cache_size"`
	FlowCacheTTL    time.Duration `mapstructure:"flow_cache_ttl"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// PathsConfig names every filesystem location the pipeline touches. The dated
// grib folders live under GribRoot and HRRRRoot; everything else is a fixed
// file or installation directory.
type PathsConfig struct {
	GribRoot      string `mapstructure:"grib_root"`
	HRRRRoot      string `mapstructure:"hrrr_root"`
	DSSDir        string `mapstructure:"dss_dir"`
	ArchiveDir    string `mapstructure:"archive_dir"`
	ScratchDir    string `mapstructure:"scratch_dir"`
	VortexHome    string `mapstructure:"vortex_home"`
	JythonExe     string `mapstructure:"jython_exe"`
	Shapefile     string `mapstructure:"shapefile"`
	HMSDir        string `mapstructure:"hms_dir"`
	HMSExe        string `mapstructure:"hms_exe"`
	ControlFile   string `mapstructure:"control_file"`
	ResultsDSS    string `mapstructure:"results_dss"`
	FlowOutputCSV string `mapstructure:"flow_output_csv"`
}

type URLsConfig struct {
	MRMSRealtime string `mapstructure:"mrms_realtime"`
	MRMSArchive  string `mapstructure:"mrms_archive"`
	HRRRBase     string `mapstructure:"hrrr_base"`
}

type DownloadConfig struct {
	RealtimeHours  int           `mapstructure:"realtime_hours"`
	IndexTimeout   time.Duration `mapstructure:"index_timeout"`
	FileTimeout    time.Duration `mapstructure:"file_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
}

// ImportConfig carries the fixed vocabulary of the geospatial batch import:
// which variables to pull from each grid, how to clip and resample them, and
// which destination series files to write.
type ImportConfig struct {
	Variables        []string `mapstructure:"variables"`
	TargetCellSize   string   `mapstructure:"target_cell_size"`
	TargetWkt        string   `mapstructure:"target_wkt"`
	ResamplingMethod string   `mapstructure:"resampling_method"`
	PartA            string   `mapstructure:"part_a"`
	PartB            string   `mapstructure:"part_b"`
	PartF            string   `mapstructure:"part_f"`
	DataType         string   `mapstructure:"data_type"`

	RealtimeDSS string `mapstructure:"realtime_dss"`
	Pass2DSS    string `mapstructure:"pass2_dss"`
	HRRRDSS     string `mapstructure:"hrrr_dss"`
	CombinedDSS string `mapstructure:"combined_dss"`
	ForecastDSS string `mapstructure:"forecast_dss"`
}

type JythonConfig struct {
	InitialHeap string `mapstructure:"initial_heap"`
	MaxHeap     string `mapstructure:"max_heap"`
	HRRRMaxHeap string `mapstructure:"hrrr_max_heap"`
}

type HMSConfig struct {
	LookbackHours  int    `mapstructure:"lookback_hours"`
	LookaheadHours int    `mapstructure:"lookahead_hours"`
	LogSuffix      string `mapstructure:"log_suffix"`
	RunName        string `mapstructure:"run_name"`
}

type PipelineConfig struct {
	RunTimeout  time.Duration `mapstructure:"run_timeout"`
	StageDelay  time.Duration `mapstructure:"stage_delay"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Minute  int  `mapstructure:"minute"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Enabled reports whether event publishing is configured at all.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// Load reads the YAML config at path (or the default search locations when
// path is empty), applies HMS_-prefixed environment overrides, and validates
// the result. A missing explicit file is an error; a missing default file
// just means defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	if c.HMS.LookbackHours <= 0 {
		return errors.New("hms.lookback_hours must be positive")
	}
	if c.HMS.LookaheadHours <= 0 {
		return errors.New("hms.lookahead_hours must be positive")
	}
	if c.Download.RealtimeHours <= 0 {
		return errors.New("download.realtime_hours must be positive")
	}
	if c.Download.MaxRetries < 0 {
		return errors.New("download.max_retries must not be negative")
	}
	if c.Download.IndexTimeout <= 0 {
		return errors.New("download.index_timeout must be positive")
	}
	if c.Download.FileTimeout <= 0 {
		return errors.New("download.file_timeout must be positive")
	}
	if c.Scheduler.Minute < 0 || c.Scheduler.Minute > 59 {
		return errors.New("scheduler.minute must be between 0 and 59")
	}
	if c.Pipeline.RunTimeout <= 0 {
		return errors.New("pipeline.run_timeout must be positive")
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when kafka.brokers is set")
	}

	required := []struct{ key, val string }{
		{"paths.grib_root", c.Paths.GribRoot},
		{"paths.hrrr_root", c.Paths.HRRRRoot},
		{"paths.dss_dir", c.Paths.DSSDir},
		{"paths.vortex_home", c.Paths.VortexHome},
		{"paths.jython_exe", c.Paths.JythonExe},
		{"paths.shapefile", c.Paths.Shapefile},
		{"paths.hms_dir", c.Paths.HMSDir},
		{"paths.hms_exe", c.Paths.HMSExe},
		{"paths.control_file", c.Paths.ControlFile},
		{"urls.mrms_realtime", c.URLs.MRMSRealtime},
		{"urls.mrms_archive", c.URLs.MRMSArchive},
		{"urls.hrrr_base", c.URLs.HRRRBase},
	}
	for _, r := range required {
		if r.val == "" {
			return fmt.Errorf("%s is required", r.key)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allow_origins", "*")
	v.SetDefault("server.body_limit_mb", 10)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.flow_cache_size", 64)
	v.SetDefault("server.flow_cache_ttl", "5m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "logs/server.log")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("paths.grib_root", "data/grib")
	v.SetDefault("paths.hrrr_root", "data/hrrr")
	v.SetDefault("paths.dss_dir", "data/dss")
	v.SetDefault("paths.archive_dir", "data/dss/dssArchive")
	v.SetDefault("paths.scratch_dir", "data/scratch")
	v.SetDefault("paths.vortex_home", "tools/vortex")
	v.SetDefault("paths.jython_exe", "tools/jython/bin/jython")
	v.SetDefault("paths.shapefile", "gis/basin_boundary.shp")
	v.SetDefault("paths.hms_dir", "model/realtime")
	v.SetDefault("paths.hms_exe", "tools/hec-hms/hec-hms.cmd")
	v.SetDefault("paths.control_file", "model/realtime/Control_1.control")
	v.SetDefault("paths.results_dss", "model/realtime/RealTime.dss")
	v.SetDefault("paths.flow_output_csv", "data/csv/output.csv")

	v.SetDefault("urls.mrms_realtime", "https://mrms.ncep.noaa.gov/2D/MultiSensor_QPE_01H_Pass2/")
	v.SetDefault("urls.mrms_archive", "https://mtarchive.geol.iastate.edu/")
	v.SetDefault("urls.hrrr_base", "https://nomads.ncep.noaa.gov/pub/data/nccf/com/hrrr/prod/")

	v.SetDefault("download.realtime_hours", 24)
	v.SetDefault("download.index_timeout", "30s")
	v.SetDefault("download.file_timeout", "10m")
	v.SetDefault("download.max_retries", 3)
	v.SetDefault("download.retry_base_delay", "2s")

	v.SetDefault("import.variables", []string{"GaugeCorrQPE01H_altitude_above_msl"})
	v.SetDefault("import.target_cell_size", "1000")
	v.SetDefault("import.target_wkt", shgWkt)
	v.SetDefault("import.resampling_method", "Nearest Neighbor")
	v.SetDefault("import.part_a", "SHG")
	v.SetDefault("import.part_b", "SARA")
	v.SetDefault("import.part_f", "IMPORT")
	v.SetDefault("import.data_type", "PER-CUM")
	v.SetDefault("import.realtime_dss", "RainfallRealTime.dss")
	v.SetDefault("import.pass2_dss", "RainfallRealTimePass2.dss")
	v.SetDefault("import.hrrr_dss", "HRR.dss")
	v.SetDefault("import.combined_dss", "RainfallRealTimePass1And2.dss")
	v.SetDefault("import.forecast_dss", "RainfallRealTimeAndForcast.dss")

	v.SetDefault("jython.initial_heap", "256m")
	v.SetDefault("jython.max_heap", "8192m")
	v.SetDefault("jython.hrrr_max_heap", "16384m")

	v.SetDefault("hms.lookback_hours", 47)
	v.SetDefault("hms.lookahead_hours", 12)
	v.SetDefault("hms.log_suffix", "_RunOutput")
	v.SetDefault("hms.run_name", "Current")

	v.SetDefault("pipeline.run_timeout", "60m")
	v.SetDefault("pipeline.stage_delay", "1s")
	v.SetDefault("pipeline.settle_delay", "15s")

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.minute", 15)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "hms-pipeline-events")
}

// shgWkt is the Standard Hydrologic Grid projection the import clips into, an
// Albers equal-area conic over NAD83.
const shgWkt = `PROJCS["USA_Contiguous_Albers_Equal_Area_Conic_USGS_version",GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Albers"],PARAMETER["False_Easting",0.0],PARAMETER["False_Northing",0.0],PARAMETER["Central_Meridian",-96.0],PARAMETER["Standard_Parallel_1",29.5],PARAMETER["Standard_Parallel_2",45.5],PARAMETER["Latitude_Of_Origin",23.0],UNIT["Meter",1.0]]`
