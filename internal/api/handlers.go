package api

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"

	"github.com/wayline-gg/wayline/internal/httputil"
	"github.com/wayline-gg/wayline/internal/projection"
	"github.com/wayline-gg/wayline/internal/route"
	"github.com/wayline-gg/wayline/internal/stream"
	"github.com/wayline-gg/wayline/internal/uplink"
	"github.com/wayline-gg/wayline/internal/version"
	"github.com/wayline-gg/wayline/internal/worldmap"
)

// ChannelView joins the data-plane counters of a channel with its uplink
// connection state. Connection is absent when the supervisor does not track
// the key (a buffer fed by some other source).
type ChannelView struct {
	stream.ChannelStats
	Connection *uplink.ChannelStatus `json:"connection,omitempty"`
}

// TransformResponse echoes the query and carries the projected pixel
// position.
type TransformResponse struct {
	MapID  worldmap.MapID `json:"mapId"`
	GameX  float64        `json:"gameX"`
	GameZ  float64        `json:"gameZ"`
	PixelX float64        `json:"pixelX"`
	PixelY float64        `json:"pixelY"`
}

// MapView is a map config plus the residual summary of its fitted transform.
type MapView struct {
	worldmap.MapConfig
	Fit FitView `json:"fit"`
}

// FitView summarises how a map's transform was obtained and how well it
// reproduces the calibration table.
type FitView struct {
	Mode           projection.FitMode `json:"mode"`
	Points         int                `json:"points"`
	MeanResidualPx float64            `json:"meanResidualPx"`
	MaxResidualPx  float64            `json:"maxResidualPx"`
	RMSResidualPx  float64            `json:"rmsResidualPx"`
}

func (s *Server) channelView(key string) (ChannelView, error) {
	stats, err := s.sync.Stats(key)
	if err != nil {
		return ChannelView{}, err
	}
	view := ChannelView{ChannelStats: stats}
	if st, err := s.sup.ChannelState(key); err == nil {
		view.Connection = &st
	}
	return view, nil
}

// channelKey pulls the mandatory ?key= parameter, answering 400 when absent.
func channelKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.URL.Query().Get("key")
	if key == "" {
		httputil.BadRequest(w, "missing 'key' parameter")
		return "", false
	}
	return key, true
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		views := make([]ChannelView, 0)
		for _, id := range s.sync.Channels() {
			view, err := s.channelView(id)
			if err != nil {
				// Unwatched between listing and stats; skip.
				continue
			}
			views = append(views, view)
		}
		httputil.WriteJSONOK(w, views)

	case http.MethodPost:
		key, ok := channelKey(w, r)
		if !ok {
			return
		}
		s.sup.Watch(key)
		view, err := s.channelView(key)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("channel %q did not materialise: %v", key, err))
			return
		}
		httputil.WriteJSONOK(w, view)

	case http.MethodDelete:
		key, ok := channelKey(w, r)
		if !ok {
			return
		}
		s.sup.Unwatch(key)
		s.tails.closeChannel(key)
		w.WriteHeader(http.StatusNoContent)

	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) listPoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	key, ok := channelKey(w, r)
	if !ok {
		return
	}
	points, err := s.sync.Points(key)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, points)
}

func (s *Server) listSegments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	key, ok := channelKey(w, r)
	if !ok {
		return
	}
	points, err := s.sync.Points(key)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	segments := route.SegmentsByMap(points)
	if mapParam := r.URL.Query().Get("map"); mapParam != "" {
		id := worldmap.MapID(mapParam)
		if _, ok := s.maps.Get(id); !ok {
			httputil.BadRequest(w, fmt.Sprintf("unknown map %q", mapParam))
			return
		}
		var filtered []route.Segment
		for _, seg := range segments {
			if seg.MapID == id {
				filtered = append(filtered, seg)
			}
		}
		segments = filtered
	}
	if segments == nil {
		segments = []route.Segment{}
	}
	httputil.WriteJSONOK(w, segments)
}

func (s *Server) listJumps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	key, ok := channelKey(w, r)
	if !ok {
		return
	}
	points, err := s.sync.Points(key)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	jumps := route.Jumps(key, points)
	if jumps == nil {
		jumps = []route.Jump{}
	}
	httputil.WriteJSONOK(w, jumps)
}

func (s *Server) showChannelState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	key, ok := channelKey(w, r)
	if !ok {
		return
	}
	view, err := s.channelView(key)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, view)
}

func (s *Server) transformPoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	mapParam := q.Get("map")
	if mapParam == "" {
		httputil.BadRequest(w, "missing 'map' parameter")
		return
	}
	x, err := strconv.ParseFloat(q.Get("x"), 64)
	if err != nil {
		httputil.BadRequest(w, "invalid 'x' parameter")
		return
	}
	z, err := strconv.ParseFloat(q.Get("z"), 64)
	if err != nil {
		httputil.BadRequest(w, "invalid 'z' parameter")
		return
	}

	id := worldmap.MapID(mapParam)
	px, py, err := s.mapper.Transform(id, x, z)
	if err != nil {
		if errors.Is(err, worldmap.ErrUnknownMap) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, TransformResponse{
		MapID:  id,
		GameX:  x,
		GameZ:  z,
		PixelX: px,
		PixelY: py,
	})
}

func (s *Server) listMaps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	views := make([]MapView, 0, s.maps.Len())
	for _, mc := range s.maps.All() {
		view := MapView{MapConfig: mc}
		if rep, err := s.mapper.Report(mc.ID); err == nil {
			view.Fit = FitView{
				Mode:           rep.Mode,
				Points:         rep.Points,
				MeanResidualPx: rep.Mean,
				MaxResidualPx:  rep.Max,
				RMSResidualPx:  rep.RMS,
			}
		}
		views = append(views, view)
	}
	httputil.WriteJSONOK(w, views)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	config := map[string]any{
		"version":   version.Version,
		"gitSha":    version.GitSHA,
		"buildTime": version.BuildTime,
		"goVersion": runtime.Version(),
		"maps":      s.maps.Len(),
		"channels":  len(s.sync.Channels()),
		"uplink":    s.sup.State(),
	}
	httputil.WriteJSONOK(w, config)
}
