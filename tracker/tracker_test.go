package tracker_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/terrawatch/landsat-tracker/common"
	"github.com/terrawatch/landsat-tracker/interface/provider"
	"github.com/terrawatch/landsat-tracker/service"
	"github.com/terrawatch/landsat-tracker/tracker"
)

var _ = Describe("Tracker", func() {
	const scene = "LC80100102015050LGN00"

	var (
		ctx    context.Context
		cancel context.CancelFunc
		fake   *fakeProvider
		store  *tracker.LatestStore
		trk    *tracker.Tracker
	)

	latestMapID := func() string {
		m, _, _ := store.Latest()
		return m.MapID
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		fake = &fakeProvider{statuses: map[string][]statusStep{}}
		store = &tracker.LatestStore{}
		trk = tracker.New(ctx, fake, store, tracker.Config{
			Criteria: common.SearchCriteria{
				Latitude:  45.5,
				Longitude: -122.6,
				DateFrom:  time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
				DateTo:    time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC),
				Process:   "truecolor",
			},
			Email:           "ops@terrawatch.io",
			SearchInterval:  20 * time.Millisecond,
			RecheckInterval: 5 * time.Millisecond,
		})
	})

	AfterEach(func() {
		cancel()
	})

	It("publishes an unrequested scene and caches its map once ready", func() {
		fake.statuses[scene] = []statusStep{
			{status: common.StatusNEW},
			{status: common.StatusPENDING},
			{status: common.StatusREADY, m: &common.PublishedMap{SceneID: scene, MapID: "abc123", ObservedAt: time.Now()}},
		}

		Expect(trk.Track(ctx, scene)).To(BeTrue())

		Eventually(latestMapID, time.Second, time.Millisecond).Should(Equal("abc123"))
		Expect(fake.publishes()).To(Equal([]publishCall{{scene, "truecolor", "ops@terrawatch.io"}}))
		m, generation, ok := store.Latest()
		Expect(ok).To(BeTrue())
		Expect(m.SceneID).To(Equal(scene))
		Expect(generation).To(Equal(uint64(1)))
	})

	It("leaves the store untouched while the provider reports pending", func() {
		fake.statuses[scene] = []statusStep{{status: common.StatusPENDING}}

		trk.Track(ctx, scene)

		Eventually(func() int {
			state, _ := trk.Chain(scene)
			return state.Checks
		}, time.Second, time.Millisecond).Should(BeNumerically(">", 3))
		_, _, ok := store.Latest()
		Expect(ok).To(BeFalse())
		Expect(fake.publishes()).To(BeEmpty())
	})

	It("schedules no further checks once a chain observes ready", func() {
		fake.statuses[scene] = []statusStep{
			{status: common.StatusREADY, m: &common.PublishedMap{SceneID: scene, MapID: "abc123"}},
		}

		trk.Track(ctx, scene)

		Eventually(trk.Chains, time.Second, time.Millisecond).Should(BeEmpty())
		_, generation, _ := store.Latest()
		Consistently(func() uint64 {
			_, g, _ := store.Latest()
			return g
		}, 50*time.Millisecond, 5*time.Millisecond).Should(Equal(generation))
	})

	It("joins an existing chain instead of spawning a duplicate", func() {
		fake.statuses[scene] = []statusStep{{status: common.StatusPENDING}}

		Expect(trk.Track(ctx, scene)).To(BeTrue())
		Expect(trk.Track(ctx, scene)).To(BeFalse())

		Expect(trk.Chains()).To(HaveLen(1))
	})

	It("keeps a single chain across overlapping search cycles for the same scene", func() {
		fake.searchID = scene
		fake.statuses[scene] = []statusStep{{status: common.StatusPENDING}}

		go trk.RunSearchLoop(ctx)

		Eventually(fake.searchCount, time.Second, time.Millisecond).Should(BeNumerically(">=", 3))
		Expect(trk.Chains()).To(HaveLen(1))
	})

	It("ends the cycle on an empty search, store untouched, no publish", func() {
		go trk.RunSearchLoop(ctx)

		Eventually(fake.searchCount, time.Second, time.Millisecond).Should(BeNumerically(">=", 2))
		Expect(trk.Chains()).To(BeEmpty())
		Expect(fake.publishes()).To(BeEmpty())
		_, _, ok := store.Latest()
		Expect(ok).To(BeFalse())
	})

	It("stops the chain on a status outside the known set", func() {
		fake.statuses[scene] = []statusStep{
			{err: provider.UnknownStatusError{SceneID: scene, Detail: "entry ready without map_id"}},
		}

		trk.Track(ctx, scene)

		Eventually(trk.Chains, time.Second, time.Millisecond).Should(BeEmpty())
		_, _, ok := store.Latest()
		Expect(ok).To(BeFalse())
	})

	It("keeps the chain alive across transient transport failures", func() {
		fake.statuses[scene] = []statusStep{
			{err: provider.TransportError{Op: "SceneStatus", Err: service.MakeTemporary(errors.New("connection reset"))}},
			{status: common.StatusREADY, m: &common.PublishedMap{SceneID: scene, MapID: "abc123"}},
		}

		trk.Track(ctx, scene)

		Eventually(latestMapID, time.Second, time.Millisecond).Should(Equal("abc123"))
	})

	It("stops the chain when the provider answers with an error status", func() {
		fake.statuses[scene] = []statusStep{
			{err: provider.TransportError{Op: "SceneStatus", Err: errors.New("500 Internal Server Error")}},
			{status: common.StatusREADY, m: &common.PublishedMap{SceneID: scene, MapID: "abc123"}},
		}

		trk.Track(ctx, scene)

		Eventually(trk.Chains, time.Second, time.Millisecond).Should(BeEmpty())
		_, _, ok := store.Latest()
		Expect(ok).To(BeFalse())
	})

	Describe("handler", func() {
		var srv *httptest.Server

		BeforeEach(func() {
			srv = httptest.NewServer(trk.NewHandler())
		})

		AfterEach(func() {
			srv.Close()
		})

		It("answers 204 until a map is ready, then serves it", func() {
			resp, err := http.Get(srv.URL + "/map")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(204))

			fake.statuses[scene] = []statusStep{
				{status: common.StatusREADY, m: &common.PublishedMap{SceneID: scene, MapID: "abc123"}},
			}
			trk.Track(ctx, scene)
			Eventually(latestMapID, time.Second, time.Millisecond).Should(Equal("abc123"))

			resp, err = http.Get(srv.URL + "/map")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(200))
			var payload struct {
				SceneID    string `json:"scene_id"`
				MapID      string `json:"map_id"`
				Generation uint64 `json:"generation"`
			}
			Expect(json.NewDecoder(resp.Body).Decode(&payload)).To(Succeed())
			Expect(payload.MapID).To(Equal("abc123"))
			Expect(payload.SceneID).To(Equal(scene))
			Expect(payload.Generation).To(Equal(uint64(1)))
		})

		It("starts and reports chains", func() {
			fake.statuses[scene] = []statusStep{{status: common.StatusPENDING}}

			resp, err := http.Post(srv.URL+"/scene/"+scene+"/track", "", nil)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(201))

			// a second track joins the running chain
			resp, err = http.Post(srv.URL+"/scene/"+scene+"/track", "", nil)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(200))

			resp, err = http.Get(srv.URL + "/scene/" + scene)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(200))
			var state tracker.ChainState
			Expect(json.NewDecoder(resp.Body).Decode(&state)).To(Succeed())
			Expect(state.SceneID).To(Equal(scene))

			resp, err = http.Get(srv.URL + "/scene/LC80000000000000LGN00")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(404))
		})
	})
})
