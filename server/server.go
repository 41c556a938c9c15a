package server

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/ant0ine/go-json-rest/rest"
	"gopkg.in/ini.v1"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/rmdb"
	"github.com/Kyooooma/RMDB/server/signal_handle"
)

// Config is the process configuration, read from an INI file with
// defaults for everything absent.
type Config struct {
	Port     int
	DbName   string
	PoolSize uint32
	// suppress output.txt duplication of SELECT results
	Ellipsis bool
}

func DefaultConfig() Config {
	return Config{Port: 8080, DbName: "rmdb", PoolSize: common.BufferPoolSize}
}

// LoadConfig reads path; a missing file yields the defaults.
func LoadConfig(path string) Config {
	cfg := DefaultConfig()
	file, err := ini.Load(path)
	if err != nil {
		return cfg
	}
	section := file.Section("server")
	if v, err := section.Key("port").Int(); err == nil && v > 0 {
		cfg.Port = v
	}
	if v := section.Key("db_name").String(); v != "" {
		cfg.DbName = v
	}
	if v, err := section.Key("pool_size").Int(); err == nil && v > 0 {
		cfg.PoolSize = uint32(v)
	}
	if v, err := section.Key("ellipsis").Bool(); err == nil {
		cfg.Ellipsis = v
	}
	return cfg
}

type QueryInput struct {
	Query     string
	SessionId string
}

type QueryOutput struct {
	Result string
	Error  string
}

// Server exposes the engine over HTTP: POST /Query runs one statement
// in the session named by the payload.
type Server struct {
	db       *rmdb.RMDB
	cfg      Config
	mutex    sync.Mutex
	sessions map[string]*rmdb.Connection
}

func NewServer(db *rmdb.RMDB, cfg Config) *Server {
	return &Server{db: db, cfg: cfg, sessions: make(map[string]*rmdb.Connection)}
}

func (s *Server) getConnection(sessionId string) *rmdb.Connection {
	if sessionId == "" {
		sessionId = "default"
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	conn, ok := s.sessions[sessionId]
	if !ok {
		conn = s.db.NewConnection()
		conn.OutputEllipsis = s.cfg.Ellipsis
		s.sessions[sessionId] = conn
	}
	return conn
}

func (s *Server) postQuery(w rest.ResponseWriter, req *rest.Request) {
	if signal_handle.IsStopped {
		rest.Error(w, "server is stopped", http.StatusGone)
		return
	}
	input := QueryInput{}
	if err := req.DecodeJsonPayload(&input); err != nil {
		rest.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if input.Query == "" {
		rest.Error(w, "Query is required", http.StatusBadRequest)
		return
	}

	conn := s.getConnection(input.SessionId)
	result, err := conn.ExecuteSQL(input.Query)
	if err != nil {
		w.WriteJson(&QueryOutput{Result: result, Error: err.Error()})
		return
	}
	w.WriteJson(&QueryOutput{Result: result})
}

// Run serves until the process is signalled.
func (s *Server) Run() error {
	signal_handle.SetupSignalHandling(func() {
		if err := s.db.Shutdown(); err != nil {
			common.Logger.WithError(err).Error("shutdown failed")
		}
	})

	api := rest.NewApi()
	api.Use(rest.DefaultDevStack...)
	router, err := rest.MakeRouter(
		rest.Post("/Query", s.postQuery),
	)
	if err != nil {
		return err
	}
	api.SetApp(router)

	common.Logger.WithField("port", s.cfg.Port).Info("server listening")
	return http.ListenAndServe(":"+strconv.Itoa(s.cfg.Port), api.MakeHandler())
}
