package web

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/img"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/nnet"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func testHistory(epochs int) nnet.History {
	var h nnet.History
	for i := 1; i <= epochs; i++ {
		h = append(h, nnet.Stats{Epoch: i, Loss: 1 / float64(i), Accuracy: 0.5, ValLoss: 1.1 / float64(i), ValAccuracy: 0.45})
	}
	return h
}

func get(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", url, nil))
	return w
}

func TestRoutes(t *testing.T) {
	log := logs.NewTestingLog(t)
	s := NewServer(log, "cifar10", 20, nil)
	h := s.Handler()

	w := get(t, h, "/")
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/stats", w.Header().Get("Location"))

	var status Status
	w = get(t, h, "/stats")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.Equal(t, 0, status.Epoch)
	require.Empty(t, status.History)

	stop, err := s.EpochEnd(log, nil, testHistory(3))
	require.NoError(t, err)
	require.False(t, stop)
	w = get(t, h, "/stats")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.Equal(t, "cifar10", status.Model)
	require.Equal(t, 3, status.Epoch)
	require.Equal(t, 20, status.MaxEpoch)
	require.Len(t, status.History, 3)
	require.Contains(t, w.Body.String(), `"val_accuracy":0.45`)

	w = get(t, h, "/plot/loss?w=300&h=200")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
	require.Contains(t, w.Body.String(), "<svg")

	require.Equal(t, http.StatusNotFound, get(t, h, "/plot/bogus").Code)
	require.Equal(t, http.StatusNotFound, get(t, h, "/images/all/1").Code)
}

func TestImages(t *testing.T) {
	s := NewServer(logs.NewTestingLog(t), "test", 1, nil)
	images := make([]*img.Image, 12)
	labels := make([]int32, len(images))
	pred := make([]int32, len(images))
	for i := range images {
		images[i] = img.NewRGB(8, 8)
		labels[i] = int32(i % 2)
		pred[i] = int32(i % 3 % 2)
	}
	data, err := img.NewData([]string{"a", "b"}, labels, images)
	require.NoError(t, err)
	s.SetPredictions(data, pred)
	h := s.Handler()

	for _, url := range []string{"/images/all/1", "/images/errors/1", "/img/3"} {
		w := get(t, h, url)
		require.Equal(t, http.StatusOK, w.Code, url)
		require.Equal(t, "image/png", w.Header().Get("Content-Type"))
		_, err := png.Decode(w.Body)
		require.NoError(t, err, url)
	}
	require.Equal(t, http.StatusNotFound, get(t, h, "/images/all/2").Code)
	require.Equal(t, http.StatusNotFound, get(t, h, "/img/13").Code)
}

func TestWebsocket(t *testing.T) {
	log := logs.NewTestingLog(t)
	s := NewServer(log, "test", 10, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.clients() == 1 }, time.Second, 10*time.Millisecond)

	_, err = s.EpochEnd(log, nil, testHistory(2))
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "2", string(msg))

	conn.Close()
	require.Eventually(t, func() bool { return s.clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestAuth(t *testing.T) {
	log := logs.NewTestingLog(t)
	s := NewServer(log, "test", 10, NewAuthMiddleware(log, "admin", "secret"))
	h := s.Handler()

	require.Equal(t, http.StatusUnauthorized, get(t, h, "/stats").Code)

	req := httptest.NewRequest("GET", "/stats", nil)
	req.SetBasicAuth("admin", "wrong")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest("GET", "/stats", nil)
	req.SetBasicAuth("admin", "secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	// session cookie is accepted without credentials
	req = httptest.NewRequest("GET", "/stats", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
