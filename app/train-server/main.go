package main

import (
	"errors"
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"

	"github.com/nowtrain/traincast/app/train-server/trainapi"
	"github.com/nowtrain/traincast/business/data/catalog"
	"github.com/nowtrain/traincast/business/data/fusion"
	"github.com/nowtrain/traincast/business/data/position"
	"github.com/nowtrain/traincast/business/data/segment"
	"github.com/nowtrain/traincast/business/data/timetable"
	"github.com/nowtrain/traincast/foundation/database"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "TRAIN_SERVER : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %v", err)
		var dataErr *catalog.ErrDataLoad
		if errors.As(err, &dataErr) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

func run(log *logger.Logger) error {
	var cfg struct {
		conf.Version
		Web struct {
			Port int `conf:"default:8080"`
		}
		GtfsRt struct {
			URL            string `conf:"default:https://api-public.odpt.org/api/v4/gtfs/realtime/jreast_train_update"`
			Key            string `conf:"noprint"`
			KeyParam       string `conf:"default:acl:consumerKey"`
			TimeoutSeconds int    `conf:"default:10"`
		}
		RefreshIntervalSec int    `conf:"default:30"`
		LocalTZ            string `conf:"default:Asia/Tokyo"`
		StaticDataDir      string `conf:"default:./data"`
		CorsAllowOrigin    string `conf:"default:*"`
		DB                 struct {
			Enable     bool   `conf:"default:false"`
			User       string `conf:"default:postgres"`
			Password   string `conf:"default:postgres,noprint"`
			Host       string `conf:"default:0.0.0.0"`
			Name       string `conf:"default:postgres"`
			DisableTLS bool   `conf:"default:true"`
		}
		Nats struct {
			Enable bool   `conf:"default:false"`
			URL    string `conf:"default:nats://127.0.0.1:4222"`
		}
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Serve realtime train positions fused from timetable and GTFS-RT data"

	const prefix = "TRAINCAST"

	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %w", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Printf("main : Started : Application initializing : version %s", build)
	defer log.Println("main: Completed")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	location, err := time.LoadLocation(cfg.LocalTZ)
	if err != nil {
		return fmt.Errorf("loading timezone %q: %w", cfg.LocalTZ, err)
	}

	// =========================================================================
	// Load static data

	log.Println("main: Loading static network data")

	cat, err := catalog.Load(log, cfg.StaticDataDir, catalog.DefaultBoundingBox)
	if err != nil {
		return err
	}
	store, err := timetable.Load(log, cfg.StaticDataDir, cat)
	if err != nil {
		return err
	}
	index := segment.NewIndex(log, store)
	matcher := fusion.NewMatcher(log, cat, store)

	// =========================================================================
	// Optional database and NATS

	var db *sqlx.DB
	if cfg.DB.Enable {
		db, err = database.Open(database.Config{
			User:       cfg.DB.User,
			Password:   cfg.DB.Password,
			Host:       cfg.DB.Host,
			Name:       cfg.DB.Name,
			DisableTLS: cfg.DB.DisableTLS,
		})
		if err != nil {
			return fmt.Errorf("connecting to db: %w", err)
		}
		defer func() {
			log.Printf("main: Database Stopping : %s", cfg.DB.Host)
			if err := db.Close(); err != nil {
				log.Printf("main: error closing database: %v", err)
			}
		}()
		if err = cat.LoadRankOverrides(db); err != nil {
			log.Printf("main: unable to load station rank overrides: %v", err)
		}
	}

	var natsConnection *nats.Conn
	if cfg.Nats.Enable {
		natsConnection, err = nats.Connect(cfg.Nats.URL)
		if err != nil {
			log.Printf("main: unable to connect to NATS at %s, cycle summaries disabled: %v", cfg.Nats.URL, err)
			natsConnection = nil
		} else {
			defer natsConnection.Close()
		}
	}

	// =========================================================================
	// Start services

	publisher := fusion.NewPublisher()
	summaries := fusion.MakeSummaryPublisher(log, natsConnection)
	materializer := position.NewMaterializer(log, cat, index, publisher, location)

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, os.Interrupt, syscall.SIGTERM)

	webShutdown := make(chan bool)
	wg := sync.WaitGroup{}
	go trainapi.RunWebService(log, &wg, cat, materializer, publisher, db, cfg.CorsAllowOrigin, cfg.Web.Port, webShutdown)

	feed := fusion.FeedConfig{
		URL:         cfg.GtfsRt.URL,
		APIKeyParam: cfg.GtfsRt.KeyParam,
		APIKey:      cfg.GtfsRt.Key,
		Timeout:     time.Duration(cfg.GtfsRt.TimeoutSeconds) * time.Second,
	}
	err = fusion.RunFusionLoop(log, feed, time.Duration(cfg.RefreshIntervalSec)*time.Second,
		location, matcher, index, publisher, summaries, shutdownSignal)

	close(webShutdown)
	wg.Wait()
	return err
}
