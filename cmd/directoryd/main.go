// directoryd is the directory service: it stores public key bundles by
// user identifier, hands out one one-time prekey per bundle fetch, and
// runs a plain store-and-forward mailbox. It never sees private keys or
// plaintext, only bundles and sealed envelopes.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sealchat/internal/domain"
	"sealchat/internal/logging"
)

// Mailbox bodies are sealed envelopes; anything bigger than this is not
// a chat message.
const maxBodyBytes = 4 << 20

type server struct {
	store store
	log   *zap.Logger
}

func main() {
	var (
		listen    = flag.String("listen", "127.0.0.1:8080", "listen address")
		redisAddr = flag.String("redis", "", "redis address (empty = in-memory store)")
		debug     = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()

	log, err := logging.New(*debug)
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck

	var st store
	if *redisAddr != "" {
		st = newRedisStore(redis.NewClient(&redis.Options{Addr: *redisAddr}))
		log.Info("using redis store", zap.String("addr", *redisAddr))
	} else {
		st = newMemoryStore()
		log.Info("using in-memory store")
	}

	s := &server{store: st, log: log}

	log.Info("directoryd listening", zap.String("addr", *listen))
	if err := http.ListenAndServe(*listen, s.router()); err != nil {
		log.Fatal("listen failed", zap.Error(err))
	}
}

func (s *server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/bundle/{user}", s.handlePutBundle).Methods(http.MethodPost)
	r.HandleFunc("/bundle/{user}", s.handleGetBundle).Methods(http.MethodGet)
	r.HandleFunc("/mailbox/{user}", s.handlePush).Methods(http.MethodPost)
	r.HandleFunc("/mailbox/{user}", s.handleDrain).Methods(http.MethodGet)
	return r
}

func (s *server) handlePutBundle(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	var bundle domain.PublicKeyBundle
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&bundle); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if bundle.UserID != user {
		http.Error(w, "bundle user mismatch", http.StatusBadRequest)
		return
	}
	if err := s.store.PutBundle(r.Context(), user, bundle); err != nil {
		s.log.Error("put bundle failed", zap.String("user", user), zap.Error(err))
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	s.log.Info("bundle registered",
		zap.String("user", user),
		zap.Int("one_time_prekeys", len(bundle.OneTimePreKeys)))
	w.WriteHeader(http.StatusOK)
}

func (s *server) handleGetBundle(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	bundle, ok, err := s.store.GetBundle(r.Context(), user)
	if err != nil {
		s.log.Error("get bundle failed", zap.String("user", user), zap.Error(err))
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if len(bundle.OneTimePreKeys) == 0 {
		// Pool exhausted: still a valid bundle, but worth noticing.
		s.log.Warn("one-time prekey pool empty", zap.String("user", user))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(bundle)
}

func (s *server) handlePush(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(raw) == 0 {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	if err := s.store.PushMessage(r.Context(), user, raw); err != nil {
		s.log.Error("push failed", zap.String("user", user), zap.Error(err))
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *server) handleDrain(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	raws, err := s.store.DrainMessages(r.Context(), user, limit)
	if err != nil {
		s.log.Error("drain failed", zap.String("user", user), zap.Error(err))
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(raws)
}
