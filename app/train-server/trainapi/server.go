package trainapi

import (
	"context"
	logger "log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nowtrain/traincast/business/data/catalog"
	"github.com/nowtrain/traincast/business/data/fusion"
	"github.com/nowtrain/traincast/business/data/position"
)

// corsMiddleware answers preflight requests and stamps the allowed origin on
// every response. An empty origin turns CORS headers off.
func corsMiddleware(allowOrigin string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// createServer creates a configured http.Server for the position query
// surface.
func createServer(log *logger.Logger,
	cat *catalog.Catalog,
	materializer *position.Materializer,
	publisher *fusion.Publisher,
	db *sqlx.DB,
	allowOrigin string,
	httpPort int) *http.Server {

	ws := &webService{
		log:          log,
		cat:          cat,
		materializer: materializer,
		publisher:    publisher,
		db:           db,
	}

	r := mux.NewRouter()
	r.Use(corsMiddleware(allowOrigin))
	// OPTIONS is routed so the CORS middleware can answer preflights.
	r.HandleFunc("/positions", ws.servePositions).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/lines", ws.serveLines).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/lines/{id}", ws.serveLine).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/stations", ws.serveStations).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/shape", ws.serveShape).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/stations/{id}/rank", ws.serveRankUpdate).Methods(http.MethodPut, http.MethodOptions)
	r.HandleFunc("/health", ws.serveHealth).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr: strings.Join([]string{"0.0.0.0", strconv.Itoa(httpPort)}, ":"),
		// Good practice to set timeouts to avoid Slowloris attacks.
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}
	return srv
}

// RunWebService starts the query web service and terminates it on shutdown
// signal.
func RunWebService(log *logger.Logger,
	wg *sync.WaitGroup,
	cat *catalog.Catalog,
	materializer *position.Materializer,
	publisher *fusion.Publisher,
	db *sqlx.DB,
	allowOrigin string,
	httpPort int,
	shutdownSignal chan bool,
) {
	wg.Add(1)
	defer wg.Done()
	srv := createServer(log, cat, materializer, publisher, db, allowOrigin, httpPort)
	log.Printf("Starting server on port %d", httpPort)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("server ListenAndServe ended. %s", err)
		}
	}()
	<-shutdownSignal
	log.Printf("ending webservice on shutdown signal")
	// The drain window starts at the signal, not at server startup.
	shutdownCtx, serverCancelFunc := context.WithTimeout(context.Background(), time.Duration(5)*time.Second)
	defer serverCancelFunc()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("error shutting down webservice, error:%s", err)
	}
}
