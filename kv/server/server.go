package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gtkv/gtkv/kv/config"
	"github.com/gtkv/gtkv/kv/row"
	"github.com/gtkv/gtkv/kv/storage"
	"github.com/gtkv/gtkv/kv/studyconfig"
	"github.com/gtkv/gtkv/rowcodec"
	"github.com/ngaut/log"
	"github.com/pingcap/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/render"
)

const defaultRowLimit = 1000

// Server answers read only queries over the variant table through HTTP.
type Server struct {
	store   storage.Store
	studies *studyconfig.Manager
	decoder *rowcodec.Decoder
	table   string
	rd      *render.Render
}

func NewServer(store storage.Store, studies *studyconfig.Manager, conf *config.Config) *Server {
	return &Server{
		store:   store,
		studies: studies,
		decoder: &rowcodec.Decoder{Strict: conf.Loader.StrictCodec},
		table:   conf.Table,
		rd: render.New(render.Options{
			IndentJSON: true,
		}),
	}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/status", s.Status).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/api/v1/studies", s.ListStudies).Methods("GET")
	router.HandleFunc("/api/v1/studies/{name}", s.GetStudy).Methods("GET")
	router.HandleFunc("/api/v1/studies/{name}/rows", s.ListRows).Methods("GET")
	router.HandleFunc("/api/v1/studies/{name}/summary", s.Summarize).Methods("GET")
	return router
}

// Status reports whether the table is reachable.
type Status struct {
	Table  string `json:"table"`
	Exists bool   `json:"exists"`
}

func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	ok, err := s.store.TableExists()
	if err != nil {
		s.rd.JSON(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.rd.JSON(w, http.StatusOK, Status{Table: s.table, Exists: ok})
}

// StudyInfo is one entry of the study list.
type StudyInfo struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

func (s *Server) ListStudies(w http.ResponseWriter, r *http.Request) {
	summary, err := s.studies.Summary()
	if err != nil {
		s.rd.JSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	infos := []StudyInfo{}
	for _, name := range summary.Names() {
		id, _ := summary.ID(name)
		infos = append(infos, StudyInfo{ID: id, Name: name})
	}
	s.rd.JSON(w, http.StatusOK, infos)
}

func (s *Server) GetStudy(w http.ResponseWriter, r *http.Request) {
	var minVersion int64
	if v := r.URL.Query().Get("min_version"); v != "" {
		var err error
		if minVersion, err = strconv.ParseInt(v, 10, 64); err != nil {
			s.rd.JSON(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	name := mux.Vars(r)["name"]
	cfg, err := s.studies.GetByName(name, minVersion)
	if err != nil {
		s.rd.JSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cfg == nil {
		s.rd.JSON(w, http.StatusNotFound, "study not found: "+name)
		return
	}
	s.rd.JSON(w, http.StatusOK, cfg)
}

// RowView is the JSON form of a row.
type RowView struct {
	Chromosome string            `json:"chromosome"`
	Position   uint32            `json:"position"`
	Reference  string            `json:"reference"`
	Alternate  string            `json:"alternate"`
	HomRef     uint32            `json:"homRef"`
	Pass       uint32            `json:"pass"`
	Call       uint32            `json:"call"`
	Het        []uint32          `json:"het,omitempty"`
	HomVar     []uint32          `json:"homVar,omitempty"`
	Other      []uint32          `json:"other,omitempty"`
	NoCall     []uint32          `json:"noCall,omitempty"`
	Overflow   map[uint32]string `json:"overflow,omitempty"`
}

func NewRowView(r *row.Row) RowView {
	k := r.Key()
	return RowView{
		Chromosome: k.Chromosome,
		Position:   k.Position,
		Reference:  k.Reference,
		Alternate:  k.Alternate,
		HomRef:     r.HomRefCount(),
		Pass:       r.PassCount(),
		Call:       r.CallCount(),
		Het:        r.Samples(row.Het),
		HomVar:     r.Samples(row.HomVar),
		Other:      r.Samples(row.Other),
		NoCall:     r.Samples(row.NoCall),
		Overflow:   r.Overflow(),
	}
}

// region resolves the study of the request and reads the chrom, start and end query parameters.
func (s *Server) region(r *http.Request) (Region, int, error) {
	name := mux.Vars(r)["name"]
	summary, err := s.studies.Summary()
	if err != nil {
		return Region{}, http.StatusInternalServerError, err
	}
	id, ok := summary.ID(name)
	if !ok {
		return Region{}, http.StatusNotFound, errors.Errorf("study not found: %s", name)
	}
	query := r.URL.Query()
	region := Region{StudyID: int64(id), Chromosome: query.Get("chrom")}
	for _, p := range []struct {
		name string
		dst  *uint32
	}{{"start", &region.Start}, {"end", &region.End}} {
		v := query.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Region{}, http.StatusBadRequest, errors.Annotatef(err, "parameter %s", p.name)
		}
		*p.dst = uint32(n)
	}
	if region.Chromosome == "" && (region.Start > 0 || region.End > 0) {
		return Region{}, http.StatusBadRequest, errors.New("start and end need chrom")
	}
	return region, http.StatusOK, nil
}

func (s *Server) ListRows(w http.ResponseWriter, r *http.Request) {
	region, code, err := s.region(r)
	if err != nil {
		s.rd.JSON(w, code, err.Error())
		return
	}
	limit := defaultRowLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			s.rd.JSON(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
	}
	views := []RowView{}
	err = ScanRows(s.store, s.decoder, region, func(rw *row.Row) bool {
		views = append(views, NewRowView(rw))
		return len(views) < limit
	})
	if err != nil {
		log.Errorf("scan rows of %s: %v", mux.Vars(r)["name"], err)
		s.rd.JSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.rd.JSON(w, http.StatusOK, views)
}

func (s *Server) Summarize(w http.ResponseWriter, r *http.Request) {
	region, code, err := s.region(r)
	if err != nil {
		s.rd.JSON(w, code, err.Error())
		return
	}
	var summarizer row.Summarizer
	err = ScanRows(s.store, s.decoder, region, func(rw *row.Row) bool {
		summarizer.Add(rw)
		return true
	})
	if err != nil {
		s.rd.JSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	summary, err := summarizer.Summary()
	if err != nil {
		s.rd.JSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.rd.JSON(w, http.StatusOK, summary)
}
