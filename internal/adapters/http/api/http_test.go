package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/pointercrate/demonlist/internal/adapters/http/api"
	"github.com/pointercrate/demonlist/internal/adapters/repository"
	service "github.com/pointercrate/demonlist/internal/app"
	"github.com/pointercrate/demonlist/internal/config"
	"github.com/pointercrate/demonlist/internal/domain/model"
	"github.com/pointercrate/demonlist/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc   *service.Service
	mux   *http.ServeMux
	clock *clock
}

func newFixture(t *testing.T, demons int) *fixture {
	t.Helper()
	cfg := config.New(context.Background())
	cfg.ListSize = 3
	cfg.ExtendedListSize = 5
	cfg.MaxRankingLimit = 10

	svc := service.New(
		service.WithStore(repository.NewMemoryStore()),
		service.WithConfig(config.NewLive(cfg, "")),
		service.WithWorkerCount(1),
	)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop(context.Background()) })

	for i := 1; i <= demons; i++ {
		_, err := svc.AddDemon(context.Background(), model.NewDemon{
			Name: fmt.Sprintf("Demon %d", i), Position: i, Requirement: 50,
			Publisher: "publisher", Verifier: "verifier",
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	c := &clock{t: time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)}
	server := api.NewServer(svc, svc, api.WithConfig(cfg), api.WithClock(c.Now))
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return &fixture{svc: svc, mux: mux, clock: c}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var rdr io.Reader = http.NoBody
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "192.0.2.1:4242"
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder, v any) {
	So(json.Unmarshal(w.Body.Bytes(), v), ShouldBeNil)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Maximal *int   `json:"maximal"`
}

func TestServer_Demons(t *testing.T) {
	Convey("Given an API over six demons", t, func() {
		f := newFixture(t, 6)

		Convey("list_information reports the section sizes", func() {
			w := f.do("GET", "/api/v1/list_information", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var info service.ListInformation
			decode(w, &info)
			So(info.ListSize, ShouldEqual, 3)
			So(info.ExtendedListSize, ShouldEqual, 5)
		})

		Convey("The live list carries sections and scores", func() {
			w := f.do("GET", "/api/v2/demons/listed", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var l struct {
				Live   bool `json:"live"`
				Demons []struct {
					Position int     `json:"position"`
					Section  string  `json:"section"`
					Score    float64 `json:"score"`
				} `json:"demons"`
			}
			decode(w, &l)
			So(l.Live, ShouldBeTrue)
			So(l.Demons, ShouldHaveLength, 6)
			So(l.Demons[0].Section, ShouldEqual, "main")
			So(l.Demons[4].Section, ShouldEqual, "extended")
			So(l.Demons[5].Section, ShouldEqual, "legacy")
			So(l.Demons[0].Score, ShouldAlmostEqual, 100, 1e-9)
		})

		Convey("The time machine is reachable by query and cookie", func() {
			w := f.do("GET", "/api/v2/demons/listed?at=2001-01-01T00:00:00Z", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var l service.Listing
			decode(w, &l)
			So(l.Live, ShouldBeFalse)
			So(l.Demons, ShouldBeEmpty)

			req := httptest.NewRequest("GET", "/api/v2/demons/listed", http.NoBody)
			req.AddCookie(&http.Cookie{Name: "when", Value: "2001-01-01T00:00:00Z"})
			rec := httptest.NewRecorder()
			f.mux.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusOK)
			decode(rec, &l)
			So(l.Live, ShouldBeFalse)

			So(f.do("GET", "/api/v2/demons/listed?at=yesterday", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A garbage cookie falls back to the live list", func() {
			req := httptest.NewRequest("GET", "/api/v2/demons/listed", http.NoBody)
			req.AddCookie(&http.Cookie{Name: "when", Value: "soon"})
			rec := httptest.NewRecorder()
			f.mux.ServeHTTP(rec, req)
			var l service.Listing
			decode(rec, &l)
			So(l.Live, ShouldBeTrue)
		})

		Convey("Adding a demon is rate limited", func() {
			body := `{"name":"New","position":2,"requirement":60,"publisher":"p","verifier":"v"}`
			w := f.do("POST", "/api/v2/demons", body)
			So(w.Code, ShouldEqual, http.StatusCreated)
			var d model.Demon
			decode(w, &d)
			So(*d.Position, ShouldEqual, 2)
			So(w.Header().Get("Location"), ShouldEqual, fmt.Sprintf("/api/v2/demons/%d", d.ID))

			w = f.do("POST", "/api/v2/demons", strings.Replace(body, "New", "Newer", 1))
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)

			f.clock.Advance(61 * time.Second)
			So(f.do("POST", "/api/v2/demons", strings.Replace(body, "New", "Newer", 1)).Code, ShouldEqual, http.StatusCreated)
		})

		Convey("Invalid inserts are explained", func() {
			w := f.do("POST", "/api/v2/demons", `{"name":"Far","position":9,"requirement":60,"publisher":"p","verifier":"v"}`)
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			var e errorBody
			decode(w, &e)
			So(e.Code, ShouldEqual, "invalid_position")
			So(*e.Maximal, ShouldEqual, 7)

			f.clock.Advance(time.Minute)
			w = f.do("POST", "/api/v2/demons", `{"name":"Hard","position":1,"requirement":101,"publisher":"p","verifier":"v"}`)
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			decode(w, &e)
			So(e.Code, ShouldEqual, "invalid_requirement")

			So(f.do("POST", "/api/v2/demons", `{"name":`).Code, ShouldEqual, http.StatusBadRequest)
			So(f.do("POST", "/api/v2/demons", `{"position":1,"publisher":"p","verifier":"v"}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Moving a demon", func() {
			w := f.do("PATCH", "/api/v2/demons/6", `{"position":1}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			var d model.Demon
			decode(w, &d)
			So(*d.Position, ShouldEqual, 1)

			w = f.do("PATCH", "/api/v2/demons/1", `{"position":7}`)
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			var e errorBody
			decode(w, &e)
			So(*e.Maximal, ShouldEqual, 6)

			So(f.do("PATCH", "/api/v2/demons/99", `{"position":1}`).Code, ShouldEqual, http.StatusNotFound)
			So(f.do("PATCH", "/api/v2/demons/abc", `{"position":1}`).Code, ShouldEqual, http.StatusBadRequest)
			So(f.do("PATCH", "/api/v2/demons/1", `{}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Removing a demon and reading its history", func() {
			w := f.do("DELETE", "/api/v2/demons/2/position", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var d model.Demon
			decode(w, &d)
			So(d.Position, ShouldBeNil)

			w = f.do("GET", "/api/v2/demons/3", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			decode(w, &d)
			So(*d.Position, ShouldEqual, 2)

			w = f.do("GET", "/api/v2/demons/3/audit/movement", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var moves []model.Movement
			decode(w, &moves)
			So(moves, ShouldHaveLength, 2)
			So(moves[0].Position, ShouldEqual, 3)
			So(moves[1].Position, ShouldEqual, 2)

			So(f.do("GET", "/api/v2/demons/42", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestServer_Records(t *testing.T) {
	Convey("Given an API over six demons", t, func() {
		f := newFixture(t, 6)
		post := func(demon, progress int, video string) *httptest.ResponseRecorder {
			return f.do("POST", "/api/v1/records",
				fmt.Sprintf(`{"demon":%d,"player":"Alice","progress":%d,"video":%q}`, demon, progress, video))
		}

		Convey("A valid submission is accepted and later approved", func() {
			w := post(1, 100, "https://www.youtube.com/watch?v=one")
			So(w.Code, ShouldEqual, http.StatusAccepted)

			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) && f.svc.GetStats(context.Background())["persisted"].(int64) < 1 {
				time.Sleep(5 * time.Millisecond)
			}

			w = f.do("PATCH", "/api/v1/records/1", `{"status":"approved"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			var rec model.Record
			decode(w, &rec)
			So(rec.Status, ShouldEqual, model.StatusApproved)

			So(f.do("GET", "/api/v1/records/1", "").Code, ShouldEqual, http.StatusOK)
			So(f.do("PATCH", "/api/v1/records/1", `{"status":"maybe"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(f.do("PATCH", "/api/v1/records/77", `{"status":"approved"}`).Code, ShouldEqual, http.StatusNotFound)

			w = f.do("GET", "/api/v1/players/ranking?limit=5", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var ranked []model.RankedPlayer
			decode(w, &ranked)
			So(ranked, ShouldHaveLength, 2)
			So(ranked[1].Player.Name, ShouldEqual, "Alice")
		})

		Convey("Rule violations are unprocessable and duplicates conflict", func() {
			So(post(4, 90, "https://example.com/ext").Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(post(1, 100, "https://example.com/dup").Code, ShouldEqual, http.StatusAccepted)
			So(post(2, 100, "https://example.com/dup").Code, ShouldEqual, http.StatusConflict)
		})

		Convey("A fourth submission from one address is rate limited", func() {
			for i := 0; i < 3; i++ {
				So(post(1, 100, fmt.Sprintf("https://example.com/v%d", i)).Code, ShouldEqual, http.StatusAccepted)
			}
			w := post(1, 100, "https://example.com/v3")
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			var e errorBody
			decode(w, &e)
			So(e.Code, ShouldEqual, "rate_limited")

			f.clock.Advance(7 * time.Minute)
			So(post(1, 100, "https://example.com/v4").Code, ShouldEqual, http.StatusAccepted)
		})

		Convey("Malformed submissions are bad requests", func() {
			So(f.do("POST", "/api/v1/records", `{"demon":1,"player":"A","video":"https://x.org"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(f.do("POST", "/api/v1/records", `{"demon":1,"player":"A","progress":100,"video":"not a url"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(f.do("POST", "/api/v1/records", `{"demon":1,"player":"A","progress":100,"video":"https://x.org","extra":1}`).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestServer_Players(t *testing.T) {
	Convey("Given an API over two demons", t, func() {
		f := newFixture(t, 2)

		Convey("The ranking validates its limit", func() {
			So(f.do("GET", "/api/v1/players/ranking", "").Code, ShouldEqual, http.StatusOK)
			So(f.do("GET", "/api/v1/players/ranking?limit=abc", "").Code, ShouldEqual, http.StatusBadRequest)
			So(f.do("GET", "/api/v1/players/ranking?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)

			w := f.do("GET", "/api/v1/players/ranking?limit=11", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			var e errorBody
			decode(w, &e)
			So(e.Code, ShouldEqual, "limit_exceeded")
		})

		Convey("Banning the verifier empties the ranking", func() {
			w := f.do("GET", "/api/v1/players/ranking", "")
			var ranked []model.RankedPlayer
			decode(w, &ranked)
			So(ranked, ShouldHaveLength, 1)

			w = f.do("PATCH", fmt.Sprintf("/api/v1/players/%d", ranked[0].Player.ID), `{"banned":true}`)
			So(w.Code, ShouldEqual, http.StatusOK)

			decode(f.do("GET", "/api/v1/players/ranking", ""), &ranked)
			So(ranked, ShouldBeEmpty)

			So(f.do("PATCH", "/api/v1/players/999", `{"banned":true}`).Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestServer_Operational(t *testing.T) {
	Convey("Given an API", t, func() {
		f := newFixture(t, 1)

		Convey("healthz serves Prometheus metrics", func() {
			f.do("GET", "/api/v1/list_information", "")
			w := f.do("GET", "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})

		Convey("stats reports the service state", func() {
			w := f.do("GET", "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var stats map[string]any
			decode(w, &stats)
			So(stats["started"], ShouldEqual, true)
		})

		Convey("Unknown methods are rejected by the mux", func() {
			So(f.do("PUT", "/api/v1/list_information", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}
