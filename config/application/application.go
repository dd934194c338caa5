package application

import (
	"fmt"
	"net/http"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/apsdehal/go-logger"
	_ "github.com/go-sql-driver/mysql"
	"github.com/openzipkin/zipkin-go"
	zipkinhttpreporter "github.com/openzipkin/zipkin-go/reporter/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/trakkie-id/paynow/config/conf"
	"github.com/trakkie-id/paynow/config/logging"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
	"gorm.io/plugin/prometheus"
)

var (
	LOGGER  *logger.Logger
	AppName = "PAYNOW"
)

func SetUpLogger(logLevel string, appName string) *logger.Logger {
	if appName != "" {
		AppName = appName
	}

	LOGGER, _ = logger.New(AppName, 100, os.Stdout)
	LOGGER.SetFormat("%{time} [%{module}] [%{level}] %{message}")

	if strings.EqualFold(logLevel, "DEBUG") {
		LOGGER.SetLogLevel(logger.DebugLevel)
	} else {
		LOGGER.SetLogLevel(logger.InfoLevel)
	}

	return LOGGER
}

// OverrideEnvVars replaces every config value whose json key is set in the
// environment. List values are comma separated.
func OverrideEnvVars(cfg *conf.Config) {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		key := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]
		raw, ok := os.LookupEnv(key)
		if key == "" || !ok {
			continue
		}

		field := v.Field(i)
		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Bool:
			if b, err := strconv.ParseBool(raw); err == nil {
				field.SetBool(b)
			}
		case reflect.Int:
			if n, err := strconv.Atoi(raw); err == nil {
				field.SetInt(int64(n))
			}
		case reflect.Slice:
			var items []string
			for _, item := range strings.Split(raw, ",") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
			field.Set(reflect.ValueOf(items))
		}
	}
}

// InitAppEnv returns the deployment environment, DEV when unset.
func InitAppEnv(env string) string {
	if env = strings.TrimSpace(env); len(env) < 1 {
		return "DEV"
	}
	return strings.ToUpper(env)
}

func InitDatabase(cfg *conf.Config) (*gorm.DB, error) {
	dsn := cfg.DBUser + ":" + cfg.DBPassword + "@(" + cfg.DBHost + ":" + cfg.DBPort + ")/" + cfg.DBDatabase + "?parseTime=true"

	level := gorm_logger.Warn
	if strings.EqualFold(cfg.LogLevel, "DEBUG") {
		level = gorm_logger.Info
	}

	gormLogger := gorm_logger.New(
		&logging.GormLogger{
			Logger: LOGGER,
		}, // io writer
		gorm_logger.Config{
			SlowThreshold: time.Second, // Slow SQL threshold
			LogLevel:      level,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	//Config DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// SetMaxIdleConns sets the maximum number of connections in the idle connection pool.
	sqlDB.SetMaxIdleConns(10)

	// SetMaxOpenConns sets the maximum number of open connections to the database.
	sqlDB.SetMaxOpenConns(100)

	// SetConnMaxLifetime sets the maximum amount of time a connection may be reused.
	sqlDB.SetConnMaxLifetime(time.Hour)

	//Set prometheus
	err = db.Use(prometheus.New(prometheus.Config{
		DBName:          cfg.DBDatabase, // use `DBName` as metrics label
		RefreshInterval: 15,             // Refresh metrics interval (default 15 seconds)
		StartServer:     false,          // start http server to expose metrics
		MetricsCollector: []prometheus.MetricsCollector{
			&prometheus.MySQL{
				VariableNames: []string{"threads_running"},
			},
		}, // user defined metrics
	}))
	if err != nil {
		LOGGER.Errorf("Unable to register database metrics: %s", err)
	}

	LOGGER.Info("Database is connected")

	return db, nil
}

func InitZipkinTracer(httpPort string, endpointUrlConf string) (*zipkin.Tracer, error) {
	const defaultEndpointURL = "http://localhost:9411/api/v2/spans"

	if len(endpointUrlConf) < 1 {
		endpointUrlConf = defaultEndpointURL
	}

	reporter := zipkinhttpreporter.NewReporter(endpointUrlConf)

	localServer, err := zipkin.NewEndpoint(AppName, "localhost:"+httpPort)
	if err != nil {
		LOGGER.Errorf("Error initializing zipkin! %s", err)
		return nil, err
	}

	sampler, err := zipkin.NewCountingSampler(1.0)
	if err != nil {
		LOGGER.Errorf("Error initializing zipkin! %s", err)
		return nil, err
	}

	t, err := zipkin.NewTracer(reporter, zipkin.WithSampler(sampler), zipkin.WithLocalEndpoint(localServer), zipkin.WithSharedSpans(false))
	if err != nil {
		LOGGER.Errorf("Error initializing zipkin! %s", err)
		return nil, err
	}

	LOGGER.Infof("Zipkin is connected, endpoint url : [%s]", endpointUrlConf)

	return t, nil
}

// NewPrometheusServer exposes the default registry on /prometheus.
func NewPrometheusServer(servingPort string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/prometheus", promhttp.Handler())
	return &http.Server{Addr: ":" + servingPort, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
}
