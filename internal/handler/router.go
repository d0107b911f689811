package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/NodirbekRare/famestate/internal/middleware"
)

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	HealthChecker  HealthChecker
	RateLimiter    *middleware.RateLimiter
	MetricsHandler http.Handler
	FamilyHandler  *FamilyHandler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → RateLimit(General)
//
// /healthと/metricsはレート制限の外に配置する。
func NewRouter(deps *RouterDeps, requestLogger func(next http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if requestLogger != nil {
		r.Use(requestLogger)
	}

	// --- 監視用のルート（レート制限なし） ---

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := deps.HealthChecker.PingContext(req.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		writeResponse(w, http.StatusOK, "ok", nil)
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- APIルート ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/family", func(r chi.Router) {
			// POST /api/family/upload - XMLアップロード（アップロード専用レート制限を追加）
			r.With(deps.RateLimiter.UploadMiddleware()).Post("/upload", deps.FamilyHandler.Upload)

			r.Post("/process", deps.FamilyHandler.Process)

			r.Route("/members/{memberID}", func(r chi.Router) {
				r.Get("/", deps.FamilyHandler.GetMember)
				r.Get("/real-estate", deps.FamilyHandler.GetMemberRealEstate)
			})

			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", deps.FamilyHandler.GetTask)
				r.Get("/result", deps.FamilyHandler.GetResult)
			})
		})
	})

	return r
}
