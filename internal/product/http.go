package product

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"ProductStore/pkg/kit"
)

const (
	maxBodyBytes = 1 << 20

	msgNotFound    = "product not found"
	msgInvalidID   = "invalid id"
	msgInvalidBody = "invalid body"
	msgServerError = "server error"
)

type Server struct {
	Store Store
	Log   *zap.Logger

	// Limiter guards the mutating routes; nil disables it.
	Limiter *kit.IPRateLimiter
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.ready)

	r.Get("/", s.root)
	r.Get("/api/hello/{name}", s.hello)
	r.Get("/api/ola/{name}", s.ola)

	r.Route("/api/products", func(pr chi.Router) {
		pr.Get("/", s.list)
		pr.Get("/{id}", s.get)

		pr.Group(func(mr chi.Router) {
			if s.Limiter != nil {
				mr.Use(s.Limiter.Middleware)
			}
			mr.Post("/", s.create)
			mr.Put("/{id}", s.replace)
			mr.Delete("/{id}", s.delete)
		})
	})

	return r
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	if err := s.Store.Ping(ctx); err != nil {
		s.logger().Warn("readyz failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	kit.WriteJSON(w, http.StatusOK, map[string]string{"service": "products"})
}

func (s *Server) hello(w http.ResponseWriter, r *http.Request) {
	kit.WriteJSON(w, http.StatusOK, map[string]string{"hello": chi.URLParam(r, "name")})
}

// ola keeps the response shape older clients of the greeting route expect.
func (s *Server) ola(w http.ResponseWriter, r *http.Request) {
	kit.WriteJSON(w, http.StatusOK, map[string]string{"Hello": chi.URLParam(r, "name")})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	products, err := s.Store.List(r.Context())
	if err != nil {
		s.logger().Error("list products failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, msgServerError, nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, products)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	p, found, err := s.Store.Get(r.Context(), id)
	if err != nil {
		s.logger().Error("get product failed", zap.Error(err), zap.Int64("id", id))
		kit.WriteError(w, r, http.StatusInternalServerError, msgServerError, nil)
		return
	}
	if !found {
		writeNotFound(w, r, id)
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

type draftReq struct {
	Name        *string  `json:"name" validate:"required"`
	Description *string  `json:"description" validate:"required"`
	Price       *float64 `json:"price" validate:"required"`
}

func (d draftReq) draft() Draft {
	return Draft{Name: *d.Name, Description: *d.Description, Price: *d.Price}
}

type productReq struct {
	ID *int64 `json:"id" validate:"required"`
	draftReq
}

func (p productReq) product() Product {
	return p.draft().withID(*p.ID)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var req draftReq
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := s.Store.Create(r.Context(), req.draft())
	if err != nil {
		s.logger().Error("create product failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, msgServerError, nil)
		return
	}

	s.logger().Info("product created", zap.Int64("id", p.ID))
	kit.WriteJSON(w, http.StatusCreated, p)
}

func (s *Server) replace(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req productReq
	if !decodeBody(w, r, &req) {
		return
	}

	next := req.product()
	if next.ID != id {
		s.logger().Warn("replacement id differs from path id",
			zap.Int64("path_id", id), zap.Int64("body_id", next.ID))
	}

	rep, found, err := s.Store.Replace(r.Context(), id, next)
	if err != nil {
		s.logger().Error("replace product failed", zap.Error(err), zap.Int64("id", id))
		kit.WriteError(w, r, http.StatusInternalServerError, msgServerError, nil)
		return
	}
	if !found {
		writeNotFound(w, r, id)
		return
	}

	s.logger().Info("product replaced", zap.Int64("id", id))
	kit.WriteJSON(w, http.StatusOK, rep)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	p, found, err := s.Store.Delete(r.Context(), id)
	if err != nil {
		s.logger().Error("delete product failed", zap.Error(err), zap.Int64("id", id))
		kit.WriteError(w, r, http.StatusInternalServerError, msgServerError, nil)
		return
	}
	if !found {
		writeNotFound(w, r, id)
		return
	}

	s.logger().Info("product deleted", zap.Int64("id", id))
	kit.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func writeNotFound(w http.ResponseWriter, r *http.Request, id int64) {
	kit.WriteError(w, r, http.StatusNotFound, msgNotFound, map[string]any{"id": id})
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		kit.WriteError(w, r, http.StatusUnprocessableEntity, msgInvalidID, map[string]any{"id": raw})
		return 0, false
	}
	return id, true
}

// decodeBody reads one JSON object into dst and checks field presence.
// Unknown fields are ignored.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		kit.WriteError(w, r, http.StatusUnprocessableEntity, msgInvalidBody, map[string]any{"cause": err.Error()})
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		kit.WriteError(w, r, http.StatusUnprocessableEntity, msgInvalidBody, map[string]any{"cause": "extra data after json object"})
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = "failed on rule: " + fe.Tag()
			}
			kit.WriteError(w, r, http.StatusUnprocessableEntity, msgInvalidBody, map[string]any{"validation_errors": fields})
			return false
		}
		kit.WriteError(w, r, http.StatusUnprocessableEntity, msgInvalidBody, nil)
		return false
	}
	return true
}
