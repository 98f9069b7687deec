package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lastday/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecommendFixture(t *testing.T, handler http.HandlerFunc) *RecommendService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRecommendService(RecommendConfig{
		ModelURL:    srv.URL,
		KakaoAPIURL: srv.URL + "/v2/local/search/keyword.json",
		KakaoAPIKey: "kakao-key",
		TourAPIURL:  srv.URL + "/tour",
		TourAPIKey:  "tour-key",
		Timeout:     2 * time.Second,
	})
}

func TestCoordinate(t *testing.T) {
	svc := newRecommendFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "KakaoAK kakao-key", r.Header.Get("Authorization"))
		assert.Equal(t, "서울역", r.URL.Query().Get("query"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		_, _ = w.Write([]byte(`{"documents":[
			{"place_name":"서울역","address_name":"서울 용산구 동자동","x":"126.97","y":"37.55"},
			{"place_name":"서울역 버스환승센터","address_name":"서울 중구","x":"bad","y":"37.5"}
		]}`))
	})

	places, err := svc.Coordinate(context.Background(), " 서울역 ")
	require.NoError(t, err)
	require.Len(t, places, 2)
	assert.Equal(t, "서울역", places[0].Title)
	assert.Equal(t, "서울 용산구 동자동", places[0].Address)
	assert.InDelta(t, 126.97, places[0].Location.X, 1e-9)
	assert.InDelta(t, 37.55, places[0].Location.Y, 1e-9)
	assert.Zero(t, places[1].Location.X)
}

func TestCoordinate_EmptyKeyword(t *testing.T) {
	svc := NewRecommendService(RecommendConfig{})
	_, err := svc.Coordinate(context.Background(), "  ")
	assertCode(t, err, models.CodeValidation)
}

func TestCoordinate_NoResults(t *testing.T) {
	svc := newRecommendFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"documents":[]}`))
	})

	places, err := svc.Coordinate(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Empty(t, places)
}

func TestRecommendRooms(t *testing.T) {
	svc := newRecommendFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/room", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "12", body["content_type"])
		assert.EqualValues(t, 5, body["candidates"])
		assert.EqualValues(t, 127.1, body["dest_x"])

		_, _ = w.Write([]byte(`{"recommended":[{
			"title":"경복궁","firstimage":"a.jpg","firstimage2":"a_s.jpg",
			"mapx":"126.977","mapy":37.579,"addr1":"서울 종로구",
			"travel_time":35,"free_time":85.5,"contentid":126508
		}]}`))
	})

	recs, err := svc.RecommendRooms(context.Background(), RoomQuery{
		SourceX: 126.9, SourceY: 37.5, DestX: 127.1, DestY: 37.6,
		ContentType: "12", Candidates: 5, LimitTimeHour: 2,
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "경복궁", recs[0].Title)
	assert.Equal(t, "a.jpg", recs[0].Image)
	assert.Equal(t, "a_s.jpg", recs[0].Thumbnail)
	assert.InDelta(t, 126.977, recs[0].Location.X, 1e-9)
	assert.InDelta(t, 37.579, recs[0].Location.Y, 1e-9)
	assert.Equal(t, "서울 종로구", recs[0].LocationString)
	assert.Equal(t, 85.5, recs[0].FreeTime)
	assert.Equal(t, "126508", recs[0].ContentID)
}

func TestRecommendStations_Validation(t *testing.T) {
	svc := NewRecommendService(RecommendConfig{})
	ctx := context.Background()

	_, err := svc.RecommendStations(ctx, StationQuery{ContentType: "12", Candidates: 3})
	assertCode(t, err, models.CodeValidation)

	_, err = svc.RecommendStations(ctx, StationQuery{ContentType: "", Candidates: 3, Radius: 1})
	assertCode(t, err, models.CodeValidation)

	_, err = svc.RecommendRooms(ctx, RoomQuery{ContentType: "12", Candidates: 0})
	assertCode(t, err, models.CodeValidation)

	_, err = svc.RecommendRooms(ctx, RoomQuery{ContentType: "12", Candidates: 1, LimitTimeMin: 75})
	assertCode(t, err, models.CodeValidation)
}

func TestRecommend_UpstreamFailure(t *testing.T) {
	svc := newRecommendFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := svc.RecommendStations(context.Background(), StationQuery{
		ContentType: "12", Candidates: 3, Radius: 2,
	})
	assertCode(t, err, models.CodeUpstream)
}

func TestRecommend_MalformedBody(t *testing.T) {
	svc := newRecommendFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	})

	_, err := svc.Coordinate(context.Background(), "x")
	assertCode(t, err, models.CodeUpstream)
}

func TestRecommend_ExpiredContext(t *testing.T) {
	svc := NewRecommendService(RecommendConfig{KakaoAPIURL: "http://127.0.0.1:1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Coordinate(ctx, "x")
	assertCode(t, err, models.CodeUpstream)
}

func TestPlaceOverview(t *testing.T) {
	svc := newRecommendFixture(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "tour-key", q.Get("ServiceKey"))
		assert.Equal(t, "ETC", q.Get("MobileOS"))
		assert.Equal(t, "LastDay", q.Get("MobileApp"))
		assert.Equal(t, "126508", q.Get("contentId"))

		switch r.URL.Path {
		case "/tour/detailCommon":
			assert.Equal(t, "12", q.Get("contentTypeId"))
			_, _ = w.Write([]byte(`{"response":{"body":{"items":{"item":{
				"title":"경복궁","homepage":"<a href=\"https://royal.go.kr\">royal</a>",
				"overview":"<p>첫 문장입니다. 둘째 문장입니다.<br> 셋째 문장입니다. 넷째 문장입니다.</p>",
				"firstimage":"main.jpg","firstimage2":"main_s.jpg","mapx":"126.977","mapy":"37.579"
			}}}}}`))
		case "/tour/detailImage":
			assert.Equal(t, "100", q.Get("numOfRows"))
			_, _ = w.Write([]byte(`{"response":{"body":{"items":{"item":[
				{"originimgurl":"1.jpg","smallimageurl":"1_s.jpg"},
				{"originimgurl":"2.jpg","smallimageurl":"2_s.jpg"}
			]}}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	info, err := svc.PlaceOverview(context.Background(), "126508", "12")
	require.NoError(t, err)
	assert.Equal(t, "126508", info.ContentID)
	assert.Equal(t, "12", info.ContentType)
	assert.Equal(t, "경복궁", info.Title)
	assert.Equal(t, "첫 문장입니다. 둘째 문장입니다. 셋째 문장입니다.", info.Overview)
	assert.Equal(t, "main.jpg", info.Image)
	assert.Equal(t, "main_s.jpg", info.Thumbnail)
	assert.InDelta(t, 126.977, info.Location.X, 1e-9)
	require.Len(t, info.Images, 2)
	assert.Equal(t, PlaceImage{ImgURL: "2.jpg", Thumbnail: "2_s.jpg"}, info.Images[1])
}

func TestPlaceOverview_SingleAndMissingImages(t *testing.T) {
	images := `{"response":{"body":{"items":{"item":{"originimgurl":"only.jpg","smallimageurl":"only_s.jpg"}}}}}`
	svc := newRecommendFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tour/detailCommon":
			_, _ = w.Write([]byte(`{"response":{"body":{"items":{"item":[{"title":"a","overview":"짧은 소개"}]}}}}`))
		case "/tour/detailImage":
			_, _ = w.Write([]byte(images))
		}
	})

	info, err := svc.PlaceOverview(context.Background(), "1", "12")
	require.NoError(t, err)
	assert.Equal(t, "짧은 소개", info.Overview)
	require.Len(t, info.Images, 1)
	assert.Equal(t, "only.jpg", info.Images[0].ImgURL)

	images = `{"response":{"body":{"items":""}}}`
	info, err = svc.PlaceOverview(context.Background(), "1", "12")
	require.NoError(t, err)
	assert.Empty(t, info.Images)
}

func TestPlaceOverview_NotFound(t *testing.T) {
	svc := newRecommendFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":{"body":{"items":""}}}`))
	})

	_, err := svc.PlaceOverview(context.Background(), "404", "12")
	assertCode(t, err, models.CodeNotFound)
}

func TestSummarizeOverview(t *testing.T) {
	assert.Equal(t, "A. B. C.", summarizeOverview("A. B. C. D. E."))
	assert.Equal(t, "A. B.", summarizeOverview("<b>A.</b> B."))
	assert.Equal(t, "", summarizeOverview(""))
}
