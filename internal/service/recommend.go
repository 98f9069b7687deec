package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"lastday/internal/models"
	"lastday/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
)

const (
	upstreamKakao = "kakao"
	upstreamModel = "model"
	upstreamTour  = "tourapi"

	tourMobileApp = "LastDay"
)

var (
	htmlTag        = regexp.MustCompile(`<[^>]*>`)
	firstSentences = regexp.MustCompile(`(?s).+?\.\s.+?\.\s.+?\.\s`)
)

// RecommendConfig points the proxy at its upstreams.
type RecommendConfig struct {
	ModelURL    string
	KakaoAPIURL string
	KakaoAPIKey string
	TourAPIURL  string
	TourAPIKey  string
	Timeout     time.Duration
}

// RecommendService proxies the recommendation model, Kakao local search and the tour API.
type RecommendService struct {
	cfg RecommendConfig
}

func NewRecommendService(cfg RecommendConfig) *RecommendService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.ModelURL = strings.TrimRight(cfg.ModelURL, "/")
	cfg.TourAPIURL = strings.TrimRight(cfg.TourAPIURL, "/")
	return &RecommendService{cfg: cfg}
}

// Place is a keyword search hit.
type Place struct {
	Title    string          `json:"title"`
	Address  string          `json:"address"`
	Location models.Location `json:"location"`
}

// RoomQuery asks the model for attractions between a source and a destination.
type RoomQuery struct {
	SourceX       float64 `json:"source_x"`
	SourceY       float64 `json:"source_y"`
	DestX         float64 `json:"dest_x"`
	DestY         float64 `json:"dest_y"`
	ContentType   string  `json:"content_type"`
	Candidates    int     `json:"candidates"`
	LimitTimeHour int     `json:"limit_time_hour"`
	LimitTimeMin  int     `json:"limit_time_min"`
}

// StationQuery asks the model for attractions within radius of a station.
type StationQuery struct {
	SourceX       float64 `json:"source_x"`
	SourceY       float64 `json:"source_y"`
	Radius        float64 `json:"radius"`
	ContentType   string  `json:"content_type"`
	Candidates    int     `json:"candidates"`
	LimitTimeHour int     `json:"limit_time_hour"`
	LimitTimeMin  int     `json:"limit_time_min"`
}

// Recommendation is one attraction returned by the model.
type Recommendation struct {
	Title          string          `json:"title"`
	Image          string          `json:"image"`
	Thumbnail      string          `json:"thumbnail"`
	Location       models.Location `json:"location"`
	LocationString string          `json:"location_string"`
	TravelTime     float64         `json:"travel_time"`
	FreeTime       float64         `json:"free_time"`
	ContentID      string          `json:"content_id"`
}

type PlaceImage struct {
	ImgURL    string `json:"imgurl"`
	Thumbnail string `json:"thumbnail"`
}

// PlaceInfo is the tour API overview of one attraction.
type PlaceInfo struct {
	ContentID   string          `json:"content_id"`
	ContentType string          `json:"content_type"`
	Title       string          `json:"title"`
	Website     string          `json:"website"`
	Overview    string          `json:"overview"`
	Image       string          `json:"image"`
	Thumbnail   string          `json:"thumbnail"`
	Images      []PlaceImage    `json:"images"`
	Location    models.Location `json:"location"`
}

// Coordinate runs a Kakao keyword search.
func (s *RecommendService) Coordinate(ctx context.Context, keyword string) ([]Place, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, models.NewValidationError("keyword is required")
	}

	q := url.Values{}
	q.Set("query", keyword)
	q.Set("page", "1")

	a := fiber.Get(s.cfg.KakaoAPIURL)
	a.Set(fiber.HeaderAuthorization, "KakaoAK "+s.cfg.KakaoAPIKey)
	a.QueryString(q.Encode())

	var res struct {
		Documents []struct {
			PlaceName   string `json:"place_name"`
			AddressName string `json:"address_name"`
			X           string `json:"x"`
			Y           string `json:"y"`
		} `json:"documents"`
	}
	if err := s.call(ctx, upstreamKakao, "keyword", a, &res); err != nil {
		return nil, err
	}

	places := make([]Place, 0, len(res.Documents))
	for _, d := range res.Documents {
		places = append(places, Place{
			Title:    d.PlaceName,
			Address:  d.AddressName,
			Location: models.Location{X: parseCoord(d.X), Y: parseCoord(d.Y)},
		})
	}
	return places, nil
}

func (s *RecommendService) RecommendRooms(ctx context.Context, q RoomQuery) ([]Recommendation, error) {
	if err := validateRecommendQuery(q.ContentType, q.Candidates, q.LimitTimeHour, q.LimitTimeMin); err != nil {
		return nil, err
	}
	return s.recommend(ctx, "room", q)
}

func (s *RecommendService) RecommendStations(ctx context.Context, q StationQuery) ([]Recommendation, error) {
	if err := validateRecommendQuery(q.ContentType, q.Candidates, q.LimitTimeHour, q.LimitTimeMin); err != nil {
		return nil, err
	}
	if q.Radius <= 0 {
		return nil, models.NewValidationError("radius must be positive")
	}
	return s.recommend(ctx, "station", q)
}

func validateRecommendQuery(contentType string, candidates, hour, minute int) error {
	if strings.TrimSpace(contentType) == "" {
		return models.NewValidationError("content_type is required")
	}
	if candidates < 1 {
		return models.NewValidationError("candidates must be at least 1")
	}
	if hour < 0 || minute < 0 || minute > 59 {
		return models.NewValidationError("invalid time limit")
	}
	return nil
}

func (s *RecommendService) recommend(ctx context.Context, path string, body any) ([]Recommendation, error) {
	a := fiber.Post(s.cfg.ModelURL + "/" + path)
	a.JSON(body)

	var res struct {
		Recommended []struct {
			Title       string          `json:"title"`
			FirstImage  string          `json:"firstimage"`
			FirstImage2 string          `json:"firstimage2"`
			MapX        json.RawMessage `json:"mapx"`
			MapY        json.RawMessage `json:"mapy"`
			Addr1       string          `json:"addr1"`
			TravelTime  float64         `json:"travel_time"`
			FreeTime    float64         `json:"free_time"`
			ContentID   json.RawMessage `json:"contentid"`
		} `json:"recommended"`
	}
	if err := s.call(ctx, upstreamModel, path, a, &res); err != nil {
		return nil, err
	}

	out := make([]Recommendation, 0, len(res.Recommended))
	for _, r := range res.Recommended {
		out = append(out, Recommendation{
			Title:          r.Title,
			Image:          r.FirstImage,
			Thumbnail:      r.FirstImage2,
			Location:       models.Location{X: parseCoord(rawString(r.MapX)), Y: parseCoord(rawString(r.MapY))},
			LocationString: r.Addr1,
			TravelTime:     r.TravelTime,
			FreeTime:       r.FreeTime,
			ContentID:      rawString(r.ContentID),
		})
	}
	return out, nil
}

type tourCommonItem struct {
	Title       string          `json:"title"`
	Overview    string          `json:"overview"`
	FirstImage  string          `json:"firstimage"`
	FirstImage2 string          `json:"firstimage2"`
	Homepage    string          `json:"homepage"`
	MapX        json.RawMessage `json:"mapx"`
	MapY        json.RawMessage `json:"mapy"`
}

type tourImageItem struct {
	OriginImgURL  string `json:"originimgurl"`
	SmallImageURL string `json:"smallimageurl"`
}

// PlaceOverview merges detailCommon and detailImage for one attraction.
func (s *RecommendService) PlaceOverview(ctx context.Context, contentID, contentType string) (*PlaceInfo, error) {
	if strings.TrimSpace(contentID) == "" || strings.TrimSpace(contentType) == "" {
		return nil, models.NewValidationError("content id and content type are required")
	}

	common := s.tourParams()
	common.Set("contentId", contentID)
	common.Set("contentTypeId", contentType)
	common.Set("defaultYN", "Y")
	common.Set("firstImageYN", "Y")
	common.Set("overviewYN", "Y")
	common.Set("mapinfoYN", "Y")

	var commonItems []tourCommonItem
	if err := s.tour(ctx, "detailCommon", common, &commonItems); err != nil {
		return nil, err
	}
	if len(commonItems) == 0 {
		return nil, models.NewNotFoundError("Place", contentID)
	}
	item := commonItems[0]

	images := s.tourParams()
	images.Set("contentId", contentID)
	images.Set("imageYN", "Y")
	images.Set("subImageYN", "Y")
	images.Set("numOfRows", "100")

	var imageItems []tourImageItem
	if err := s.tour(ctx, "detailImage", images, &imageItems); err != nil {
		return nil, err
	}

	info := &PlaceInfo{
		ContentID:   contentID,
		ContentType: contentType,
		Title:       item.Title,
		Website:     item.Homepage,
		Overview:    summarizeOverview(item.Overview),
		Image:       item.FirstImage,
		Thumbnail:   item.FirstImage2,
		Images:      make([]PlaceImage, 0, len(imageItems)),
		Location:    models.Location{X: parseCoord(rawString(item.MapX)), Y: parseCoord(rawString(item.MapY))},
	}
	for _, img := range imageItems {
		info.Images = append(info.Images, PlaceImage{ImgURL: img.OriginImgURL, Thumbnail: img.SmallImageURL})
	}
	return info, nil
}

func (s *RecommendService) tourParams() url.Values {
	q := url.Values{}
	q.Set("ServiceKey", s.cfg.TourAPIKey)
	q.Set("MobileOS", "ETC")
	q.Set("MobileApp", tourMobileApp)
	q.Set("_type", "json")
	return q
}

// tour calls one tour API operation and decodes response.body.items.item, which the API
// sends as an object, an array or an empty string depending on the hit count.
func (s *RecommendService) tour(ctx context.Context, op string, params url.Values, dest any) error {
	a := fiber.Get(s.cfg.TourAPIURL + "/" + op)
	a.QueryString(params.Encode())

	var res struct {
		Response struct {
			Body struct {
				Items json.RawMessage `json:"items"`
			} `json:"body"`
		} `json:"response"`
	}
	if err := s.call(ctx, upstreamTour, op, a, &res); err != nil {
		return err
	}

	items := res.Response.Body.Items
	if len(items) == 0 || items[0] != '{' {
		return nil
	}
	var wrapper struct {
		Item json.RawMessage `json:"item"`
	}
	if err := json.Unmarshal(items, &wrapper); err != nil {
		return models.NewUpstreamError(upstreamTour, fmt.Errorf("decode items: %w", err))
	}

	raw := wrapper.Item
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '{' {
		raw = append(append([]byte{'['}, raw...), ']')
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return models.NewUpstreamError(upstreamTour, fmt.Errorf("decode item: %w", err))
	}
	return nil
}

// call executes the agent and decodes a 2xx JSON body into dest. The agent is released.
func (s *RecommendService) call(ctx context.Context, upstream, op string, a *fiber.Agent, dest any) error {
	span, ctx := observability.StartClientSpan(ctx, upstream, op)
	defer span.End()

	timeout, err := s.timeout(ctx)
	if err != nil {
		fiber.ReleaseAgent(a)
		span.SetError(err)
		return models.NewUpstreamError(upstream, err)
	}

	start := time.Now()
	code, body, errs := a.Timeout(timeout).Bytes()
	observability.ObserveUpstream(upstream, code, start)
	span.AddAttributes(attribute.Int("http.status_code", code))

	switch {
	case len(errs) > 0:
		err = errors.Join(errs...)
	case code < fiber.StatusOK || code >= fiber.StatusMultipleChoices:
		err = fmt.Errorf("%s %s returned status %d", upstream, op, code)
	default:
		if jerr := json.Unmarshal(body, dest); jerr != nil {
			err = fmt.Errorf("decode %s response: %w", op, jerr)
		}
	}
	if err != nil {
		span.SetError(err)
		return models.NewUpstreamError(upstream, err)
	}
	return nil
}

func (s *RecommendService) timeout(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < s.cfg.Timeout {
			if d <= 0 {
				return 0, context.DeadlineExceeded
			}
			return d, nil
		}
	}
	return s.cfg.Timeout, nil
}

func summarizeOverview(overview string) string {
	text := strings.TrimSpace(htmlTag.ReplaceAllString(overview, ""))
	if m := firstSentences.FindString(text + " "); m != "" {
		return strings.TrimSpace(m)
	}
	return text
}

func parseCoord(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// rawString reads a JSON value the model sends either as a string or as a number.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
