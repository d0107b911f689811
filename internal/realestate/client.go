// Package realestate は外部不動産照会サービスとの連携機能を提供する。
// 照会APIの呼び出しと、照会失敗をタスク失敗へ波及させないゲートウェイを含む。
package realestate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/NodirbekRare/famestate/internal/model"
)

// Client は不動産照会APIのクライアント。
// 構成員の氏名と生年月日をクエリパラメータとして渡し、
// 保有不動産の一覧をJSONで受け取る。
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	endpoint    string
	maxBodySize int64
	limiter     *rate.Limiter
}

// NewClient はClientの新しいインスタンスを生成する。
// intervalは連続呼び出しの最小間隔を指定する。外部サービスへの
// リクエストはこの間隔でペーシングされ、突発的な負荷を与えない。
func NewClient(httpClient *http.Client, logger *slog.Logger, endpoint string, maxBodySize int64, interval rate.Limit) *Client {
	return &Client{
		httpClient:  httpClient,
		logger:      logger,
		endpoint:    endpoint,
		maxBodySize: maxBodySize,
		limiter:     rate.NewLimiter(interval, 1),
	}
}

// Lookup は指定構成員の保有不動産を照会する。
// 照会APIは以下の形式のJSONを返す:
//
//	{"hasRealEstate": true, "objects": [{"type": "...", "address": "...", "ownership": "..."}]}
//
// HTTPエラー、タイムアウト、不正なレスポンスの場合はエラーを返す。
// 呼び出し元（Gateway）が失敗時のフォールバックを判断する。
func (c *Client) Lookup(ctx context.Context, member *model.Member) (*model.LookupResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("照会の待機に失敗しました: %w", err)
	}

	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("照会APIのURLのパースに失敗しました: %w", err)
	}

	q := reqURL.Query()
	q.Set("last_name", member.LastName)
	q.Set("first_name", member.FirstName)
	q.Set("middle_name", member.MiddleName)
	q.Set("birth_date", member.BirthDate)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Famestate/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("照会APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("照会APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result model.LookupResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return &result, nil
}
