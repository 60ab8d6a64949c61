// Package web serves a live view of network training: the history as JSON, plots of the loss
// and accuracy and grids of the latest predictions. Clients connected to the websocket are sent
// the epoch number after each epoch completes.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/img"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/nnet"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/plots"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/stats"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Image grid page size
const (
	Rows = 8
	Cols = 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server implements the nnet.Monitor interface to record the training history.
type Server struct {
	Model    string
	MaxEpoch int
	log      logs.Log
	router   *mux.Router
	mu       sync.Mutex
	history  nnet.History
	conns    map[*websocket.Conn]bool
	data     *img.Data
	pred     []int32
}

// Status returned by the /stats endpoint
type Status struct {
	Model    string       `json:"model"`
	Epoch    int          `json:"epoch"`
	MaxEpoch int          `json:"max_epoch"`
	History  nnet.History `json:"history"`
}

// NewServer sets up the routes. If auth is not nil then all requests must be authenticated.
func NewServer(log logs.Log, model string, maxEpoch int, auth *AuthMiddleware) *Server {
	s := &Server{Model: model, MaxEpoch: maxEpoch, log: log, conns: map[*websocket.Conn]bool{}}
	r := mux.NewRouter()
	if auth != nil {
		r.Use(auth.Middleware)
	}
	r.Handle("/", http.RedirectHandler("/stats", http.StatusFound))
	r.HandleFunc("/stats", s.stats)
	r.HandleFunc("/plot/{metric:(?:loss|accuracy)}", s.plot)
	r.HandleFunc("/images/{inc:(?:all|errors)}/{page:[0-9]+}", s.images)
	r.HandleFunc("/img/{id:[0-9]+}", s.image)
	r.HandleFunc("/ws", s.connect)
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves requests until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		s.closeAll()
	}()
	s.log.Infof("serving web page at http://%s", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// EpochEnd saves a copy of the history and notifies any connected clients.
func (s *Server) EpochEnd(log logs.Log, net *nnet.Network, h nnet.History) (bool, error) {
	s.mu.Lock()
	s.history = append(nnet.History{}, h...)
	s.mu.Unlock()
	s.notify(strconv.Itoa(h.Last().Epoch))
	return false, nil
}

// SetPredictions updates the images shown on the /images pages.
func (s *Server) SetPredictions(data *img.Data, pred []int32) {
	s.mu.Lock()
	s.data, s.pred = data, pred
	s.mu.Unlock()
	s.notify("images")
}

func (s *Server) notify(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			s.log.Warnf("error writing to websocket: %v", err)
			conn.Close()
			delete(s.conns, conn)
		}
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
		delete(s.conns, conn)
	}
}

func (s *Server) clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := Status{Model: s.Model, Epoch: s.history.Last().Epoch, MaxEpoch: s.MaxEpoch, History: s.history}
	if status.History == nil {
		status.History = nnet.History{}
	}
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.log.Errorf("error encoding stats: %v", err)
	}
}

func (s *Server) plot(w http.ResponseWriter, r *http.Request) {
	metric := mux.Vars(r)["metric"]
	width, height := formInt(r, "w", 600), formInt(r, "h", 400)
	s.mu.Lock()
	data, err := plots.HistorySVG(s.history, metric, width, height)
	s.mu.Unlock()
	if err != nil {
		s.logError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Write(data)
}

// grid of images with predicted and actual class, optionally only the errors
func (s *Server) images(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	page, _ := strconv.Atoi(vars["page"])
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		http.NotFound(w, r)
		return
	}
	var index []int
	if vars["inc"] == "errors" {
		index = stats.Misclassified(s.data.Labels, s.pred)
	} else {
		index = make([]int, len(s.pred))
		for i := range index {
			index[i] = i
		}
	}
	start, end := (page-1)*Rows*Cols, page*Rows*Cols
	if page < 1 || start >= len(index) {
		http.NotFound(w, r)
		return
	}
	im, err := plots.PredictionImage(s.data, s.pred, index[start:min(end, len(index))], Cols)
	if err != nil {
		s.logError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	png.Encode(w, im)
}

// single image scaled up for display
func (s *Server) image(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil || id < 1 || id > s.data.Len() {
		http.NotFound(w, r)
		return
	}
	src := s.data.Images[id-1]
	scale := formInt(r, "scale", plots.GridScale)
	w.Header().Set("Content-Type", "image/png")
	png.Encode(w, img.Resize(src, scale*src.Width, scale*src.Height))
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("websocket upgrade: %v", err)
		return
	}
	s.mu.Lock()
	s.conns[conn] = true
	s.mu.Unlock()
	// discard incoming messages until the client goes away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		s.mu.Lock()
		if s.conns[conn] {
			conn.Close()
			delete(s.conns, conn)
		}
		s.mu.Unlock()
	}()
}

func (s *Server) logError(w http.ResponseWriter, err error) {
	s.log.Errorf("%v", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func formInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.FormValue(key)); err == nil && v > 0 {
		return v
	}
	return def
}
