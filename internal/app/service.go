package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"craftboard/api/internal/assets"
	"craftboard/api/internal/canvas"
	"craftboard/api/internal/drafts"
	"craftboard/api/internal/search"
	"craftboard/api/internal/store"
	"craftboard/api/internal/util"
)

const maxTitleLength = 200

type CreateDesignInput struct {
	Title     string          `json:"title"`
	OwnerName string          `json:"ownerName"`
	Canvas    json.RawMessage `json:"canvas"`
}

type RenameDesignInput struct {
	Title string `json:"title"`
}

type SaveCanvasInput struct {
	Canvas json.RawMessage `json:"canvas"`
}

type SaveDraftInput struct {
	ParticipantID string          `json:"participantId"`
	Canvas        json.RawMessage `json:"canvas"`
}

type AddCommentInput struct {
	AuthorName string `json:"authorName"`
	Body       string `json:"body"`
	LayerID    string `json:"layerId"`
}

type DesignView struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	OwnerName string          `json:"ownerName"`
	Canvas    json.RawMessage `json:"canvas,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type CommentView struct {
	ID         string    `json:"id"`
	DesignID   string    `json:"designId"`
	AuthorName string    `json:"authorName"`
	Body       string    `json:"body"`
	LayerID    string    `json:"layerId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type DraftView struct {
	DesignID      string          `json:"designId"`
	ParticipantID string          `json:"participantId"`
	Canvas        json.RawMessage `json:"canvas"`
	SavedAt       time.Time       `json:"savedAt"`
}

type dataStore interface {
	Ping(context.Context) error
	CreateDesign(context.Context, store.Design) error
	GetDesign(context.Context, string) (store.Design, error)
	ListDesigns(context.Context, int) ([]store.Design, error)
	SaveCanvas(context.Context, string, json.RawMessage) error
	RenameDesign(context.Context, string, string) error
	DeleteDesign(context.Context, string) error
	InsertComment(context.Context, store.Comment) error
	ListComments(context.Context, string) ([]store.Comment, error)
}

type draftStore interface {
	Save(ctx context.Context, designID, participantID string, canvas json.RawMessage) error
	Load(ctx context.Context, designID string) (drafts.Draft, error)
	Discard(ctx context.Context, designID string) error
	Ping(ctx context.Context) error
}

type designSearcher interface {
	Search(search.Query) search.Response
	IndexDesign(search.DesignRecord)
	DeleteDesign(string)
}

type assetStore interface {
	Upload(ctx context.Context, contentType string, size int64, body io.Reader) (string, error)
}

type roomDirectory interface {
	Roster(designID string) []string
	RoomCount() int
}

// Deps carries the service's collaborators. Drafts, Search, and Assets are
// optional; their endpoints answer 503 when unconfigured.
type Deps struct {
	Store  dataStore
	Drafts draftStore
	Search designSearcher
	Assets assetStore
	Rooms  roomDirectory
}

type Service struct {
	store  dataStore
	drafts draftStore
	search designSearcher
	assets assetStore
	rooms  roomDirectory
}

func NewService(deps Deps) *Service {
	return &Service{
		store:  deps.Store,
		drafts: deps.Drafts,
		search: deps.Search,
		assets: deps.Assets,
		rooms:  deps.Rooms,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingDrafts(ctx context.Context) error {
	if s.drafts == nil {
		return errors.New("drafts not configured")
	}
	return s.drafts.Ping(ctx)
}

func (s *Service) DraftsEnabled() bool {
	return s.drafts != nil
}

func (s *Service) CreateDesign(ctx context.Context, input CreateDesignInput) (DesignView, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > maxTitleLength {
		return DesignView{}, domainError(http.StatusBadRequest, "INVALID_TITLE", "Title must be 1-200 characters", nil)
	}
	owner := strings.TrimSpace(input.OwnerName)
	if owner == "" {
		return DesignView{}, domainError(http.StatusBadRequest, "INVALID_OWNER", "Owner name is required", nil)
	}
	if len(input.Canvas) > 0 {
		if err := validateCanvas(input.Canvas); err != nil {
			return DesignView{}, err
		}
	}

	design := store.Design{
		ID:        util.NewID("design"),
		Title:     title,
		OwnerName: owner,
		Canvas:    input.Canvas,
	}
	if err := s.store.CreateDesign(ctx, design); err != nil {
		return DesignView{}, err
	}

	created, err := s.store.GetDesign(ctx, design.ID)
	if err != nil {
		return DesignView{}, err
	}
	s.indexDesign(created)
	return designView(created, true), nil
}

func (s *Service) GetDesign(ctx context.Context, id string) (DesignView, error) {
	design, err := s.store.GetDesign(ctx, id)
	if err != nil {
		return DesignView{}, err
	}
	return designView(design, true), nil
}

func (s *Service) ListDesigns(ctx context.Context, limit int) ([]DesignView, error) {
	designs, err := s.store.ListDesigns(ctx, limit)
	if err != nil {
		return nil, err
	}
	views := make([]DesignView, 0, len(designs))
	for _, d := range designs {
		views = append(views, designView(d, false))
	}
	return views, nil
}

func (s *Service) RenameDesign(ctx context.Context, id string, input RenameDesignInput) (DesignView, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > maxTitleLength {
		return DesignView{}, domainError(http.StatusBadRequest, "INVALID_TITLE", "Title must be 1-200 characters", nil)
	}
	if err := s.store.RenameDesign(ctx, id, title); err != nil {
		return DesignView{}, err
	}
	design, err := s.store.GetDesign(ctx, id)
	if err != nil {
		return DesignView{}, err
	}
	s.indexDesign(design)
	return designView(design, false), nil
}

func (s *Service) DeleteDesign(ctx context.Context, id string) error {
	if _, err := s.store.GetDesign(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteDesign(ctx, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteDesign(id)
	}
	if s.drafts != nil {
		_ = s.drafts.Discard(ctx, id)
	}
	return nil
}

// SaveCanvas is the explicit save: the client's serialized state replaces
// the stored canvas wholesale, and any autosaved draft becomes redundant.
func (s *Service) SaveCanvas(ctx context.Context, id string, input SaveCanvasInput) error {
	if err := validateCanvas(input.Canvas); err != nil {
		return err
	}
	if err := s.store.SaveCanvas(ctx, id, input.Canvas); err != nil {
		return err
	}
	if s.drafts != nil {
		_ = s.drafts.Discard(ctx, id)
	}
	return nil
}

func (s *Service) AddComment(ctx context.Context, designID string, input AddCommentInput) (CommentView, error) {
	author := strings.TrimSpace(input.AuthorName)
	if author == "" {
		return CommentView{}, domainError(http.StatusBadRequest, "INVALID_AUTHOR", "Author name is required", nil)
	}
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return CommentView{}, domainError(http.StatusBadRequest, "INVALID_BODY", "Comment body is required", nil)
	}
	if _, err := s.store.GetDesign(ctx, designID); err != nil {
		return CommentView{}, err
	}

	comment := store.Comment{
		ID:         util.NewID("comment"),
		DesignID:   designID,
		AuthorName: author,
		Body:       body,
		LayerID:    strings.TrimSpace(input.LayerID),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return CommentView{}, err
	}
	return commentView(comment), nil
}

func (s *Service) ListComments(ctx context.Context, designID string) ([]CommentView, error) {
	if _, err := s.store.GetDesign(ctx, designID); err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, designID)
	if err != nil {
		return nil, err
	}
	views := make([]CommentView, 0, len(comments))
	for _, c := range comments {
		views = append(views, commentView(c))
	}
	return views, nil
}

func (s *Service) SaveDraft(ctx context.Context, designID string, input SaveDraftInput) error {
	if s.drafts == nil {
		return draftsUnavailable()
	}
	if strings.TrimSpace(input.ParticipantID) == "" {
		return domainError(http.StatusBadRequest, "INVALID_PARTICIPANT", "Participant id is required", nil)
	}
	if err := validateCanvas(input.Canvas); err != nil {
		return err
	}
	if _, err := s.store.GetDesign(ctx, designID); err != nil {
		return err
	}
	return s.drafts.Save(ctx, designID, input.ParticipantID, input.Canvas)
}

func (s *Service) LoadDraft(ctx context.Context, designID string) (DraftView, error) {
	if s.drafts == nil {
		return DraftView{}, draftsUnavailable()
	}
	draft, err := s.drafts.Load(ctx, designID)
	if err != nil {
		return DraftView{}, err
	}
	return DraftView{
		DesignID:      draft.DesignID,
		ParticipantID: draft.ParticipantID,
		Canvas:        draft.Canvas,
		SavedAt:       draft.SavedAt,
	}, nil
}

func (s *Service) DiscardDraft(ctx context.Context, designID string) error {
	if s.drafts == nil {
		return draftsUnavailable()
	}
	return s.drafts.Discard(ctx, designID)
}

func (s *Service) SearchDesigns(q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	return s.search.Search(q), nil
}

// Roster reports who is currently connected to a design's room. Empty when
// nobody is editing.
func (s *Service) Roster(designID string) []string {
	if s.rooms == nil {
		return nil
	}
	return s.rooms.Roster(designID)
}

func (s *Service) ActiveRooms() int {
	if s.rooms == nil {
		return 0
	}
	return s.rooms.RoomCount()
}

func (s *Service) UploadAsset(ctx context.Context, contentType string, size int64, body io.Reader) (string, error) {
	if s.assets == nil {
		return "", domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Image uploads are not configured", nil)
	}
	url, err := s.assets.Upload(ctx, contentType, size, body)
	if errors.Is(err, assets.ErrUnsupportedType) {
		return "", domainError(http.StatusUnsupportedMediaType, "UNSUPPORTED_TYPE", "Only image uploads are accepted", nil)
	}
	return url, err
}

func (s *Service) indexDesign(d store.Design) {
	if s.search == nil {
		return
	}
	s.search.IndexDesign(search.DesignRecord{
		ID:        d.ID,
		Title:     d.Title,
		OwnerName: d.OwnerName,
	})
}

// validateCanvas rejects payloads that do not decode as a canvas state. The
// stored bytes stay exactly as the client sent them.
func validateCanvas(raw json.RawMessage) error {
	if len(raw) == 0 {
		return domainError(http.StatusBadRequest, "INVALID_CANVAS", "Canvas payload is required", nil)
	}
	var state canvas.CanvasState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domainError(http.StatusBadRequest, "INVALID_CANVAS", "Canvas payload is not a valid canvas state", nil)
	}
	for _, layer := range state.Layers {
		if layer.ID == "" {
			return domainError(http.StatusBadRequest, "INVALID_CANVAS", "Every layer needs an id", nil)
		}
	}
	return nil
}

func draftsUnavailable() *DomainError {
	return domainError(http.StatusServiceUnavailable, "DRAFTS_UNAVAILABLE", "Draft autosave is not configured", nil)
}

func designView(d store.Design, includeCanvas bool) DesignView {
	view := DesignView{
		ID:        d.ID,
		Title:     d.Title,
		OwnerName: d.OwnerName,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if includeCanvas {
		view.Canvas = d.Canvas
	}
	return view
}

func commentView(c store.Comment) CommentView {
	return CommentView{
		ID:         c.ID,
		DesignID:   c.DesignID,
		AuthorName: c.AuthorName,
		Body:       c.Body,
		LayerID:    c.LayerID,
		CreatedAt:  c.CreatedAt,
	}
}
