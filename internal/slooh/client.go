package slooh

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/sloohtools/slooh-downloader/internal/http"
	"github.com/sloohtools/slooh-downloader/internal/model"
	"github.com/sloohtools/slooh-downloader/internal/slooh/dto"
)

// ErrAuth marks authentication failures. They are fatal for a run and
// never retried; callers test with errors.Is(err, slooh.ErrAuth).
var ErrAuth = errors.New("slooh: not authenticated")

const (
	productID   = "ee26fb6d-3351-11eb-83b9-0655cc43ca95"
	locale      = "en"
	tokenCookie = "_sloohsstkn"

	// ViewTypePhotoRoll scans the full photoroll, newest first.
	ViewTypePhotoRoll = "photoRoll"
	// ViewTypeMissions scans pictures scoped to a single mission.
	ViewTypeMissions = "missions"
)

// Client talks to the Slooh API.
//
// A Client must be authenticated with Login before any picture listing
// call. The session token is carried both as a cookie and in request
// bodies, matching what the web app does.
type Client struct {
	baseURL      string
	http         *http.Client
	log          *zap.SugaredLogger
	sessionToken string
	at           string
	cid          string
	token        string
	authed       bool
}

// NewClient creates an API client for the given base URL
// (e.g. "https://app.slooh.com").
func NewClient(baseURL string, timeout time.Duration, log *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.NewClient(timeout),
		log:     log,
	}
}

// IsAuthenticated reports whether Login has succeeded.
func (c *Client) IsAuthenticated() bool {
	return c.authed
}

// HTTP exposes the underlying HTTP client so downloads share the
// session cookie jar with API calls.
func (c *Client) HTTP() *http.Client {
	return c.http
}

func (c *Client) url(endpoint string) string {
	return c.baseURL + endpoint
}

// generateSessionToken fetches a fresh session token and installs it as
// the session cookie.
func (c *Client) generateSessionToken(ctx context.Context) error {
	c.log.Debug("requesting session token")

	var resp dto.TokenResponse
	if err := c.http.PostJSON(ctx, c.url("/api/app/generateSessionToken"), nil, &resp); err != nil {
		return errors.Wrap(err, "generating session token")
	}
	if resp.SloohSessionToken == "" {
		return errors.New("session token not found in response")
	}

	c.sessionToken = resp.SloohSessionToken
	if err := c.http.SetCookie(c.baseURL, tokenCookie, c.sessionToken); err != nil {
		return err
	}

	c.log.Debug("session token acquired")
	return nil
}

// Login authenticates with the given credentials. A failed login returns
// an error marked with ErrAuth.
func (c *Client) Login(ctx context.Context, username, password string) error {
	c.log.Infow("authenticating", "user", username)

	if c.sessionToken == "" {
		if err := c.generateSessionToken(ctx); err != nil {
			return errors.Mark(err, ErrAuth)
		}
	}

	body := map[string]any{
		"username":  username,
		"passwd":    password,
		"productId": productID,
		"locale":    locale,
	}

	var resp dto.LoginResponse
	if err := c.http.PostJSON(ctx, c.url("/api/users/login"), body, &resp); err != nil {
		c.authed = false
		return errors.Mark(errors.Wrap(err, "login request"), ErrAuth)
	}

	if resp.LoginError == "true" {
		c.authed = false
		msg := resp.ErrorMsg
		if msg == "" {
			msg = "login failed"
		}
		return errors.Mark(errors.Newf("login failed (code %s): %s", resp.ErrorCode, msg), ErrAuth)
	}
	if resp.UserID == "" && resp.UserIDAlt == "" {
		c.authed = false
		return errors.Mark(errors.New("login failed: no user data in response"), ErrAuth)
	}

	c.at = resp.At.String()
	c.cid = resp.CID.String()
	c.token = resp.Token.String()
	c.authed = true

	name := resp.DisplayName
	if name == "" {
		name = username
	}
	c.log.Infow("authenticated", "user", name)
	return nil
}

// sessionFields returns the common request-body fields every
// authenticated API call carries.
func (c *Client) sessionFields() map[string]any {
	return map[string]any{
		"sloohSessionToken": c.sessionToken,
		"at":                c.at,
		"cid":               c.cid,
		"token":             c.token,
		"productId":         productID,
		"locale":            locale,
	}
}

// Page is one page of the photoroll listing.
type Page struct {
	// TotalCount is the total number of pictures the service reports
	// for this view.
	TotalCount int

	// Pictures are the page entries, converted and position-tagged by
	// the caller-supplied first offset.
	Pictures []*model.Picture
}

// GetPictures fetches one page of the photoroll.
//
// first is the 1-based index of the first picture requested, max the
// page size. missionID filters to one mission ("" or "0" scans
// everything). viewType is ViewTypePhotoRoll or ViewTypeMissions; pass
// "" to auto-select based on missionID like the web app does.
func (c *Client) GetPictures(ctx context.Context, first, max int, missionID, viewType string) (*Page, error) {
	if !c.authed {
		return nil, errors.WithStack(ErrAuth)
	}

	missionID = model.NormalizeMissionID(missionID)
	if viewType == "" {
		if missionID == "" {
			viewType = ViewTypePhotoRoll
		} else {
			viewType = ViewTypeMissions
		}
	}
	scheduledMissionID := 0
	if missionID != "" {
		scheduledMissionID = dto.FlexString(missionID).Int()
	}

	body := c.sessionFields()
	body["scheduledMissionId"] = scheduledMissionID
	body["maxImageCount"] = max
	body["firstImageNumber"] = first
	body["viewType"] = viewType

	c.log.Debugw("requesting pictures page",
		"first", first, "max", max, "mission_id", scheduledMissionID, "view_type", viewType)

	var resp dto.PicturesResponse
	if err := c.http.PostJSON(ctx, c.url("/api/images/getMyPictures"), body, &resp); err != nil {
		return nil, errors.Wrap(err, "getMyPictures")
	}

	page := &Page{TotalCount: resp.TotalCount.Int()}
	for i := range resp.ImageList {
		page.Pictures = append(page.Pictures, resp.ImageList[i].ToPicture(first+i))
	}

	c.log.Debugw("pictures page received",
		"total_count", page.TotalCount, "received", len(page.Pictures))
	return page, nil
}

// GetMissionFITS fetches the FITS files belonging to a mission, grouped
// by instrument on the wire and flattened here. Returns no pictures for
// an empty or "0" mission id.
func (c *Client) GetMissionFITS(ctx context.Context, missionID string) ([]*model.Picture, error) {
	if !c.authed {
		return nil, errors.WithStack(ErrAuth)
	}

	missionID = model.NormalizeMissionID(missionID)
	if missionID == "" {
		return nil, nil
	}

	body := c.sessionFields()
	// The FITS endpoint names the token field differently.
	delete(body, "sloohSessionToken")
	body["sloohSiteSessionToken"] = c.sessionToken
	body["scheduledMissionId"] = dto.FlexString(missionID).Int()
	body["maxImageCount"] = 100
	body["firstImageNumber"] = 1
	body["viewType"] = ViewTypeMissions

	c.log.Debugw("requesting mission FITS", "mission_id", missionID)

	var resp dto.FITSResponse
	if err := c.http.PostJSON(ctx, c.url("/api/images/getMissionFITS"), body, &resp); err != nil {
		return nil, errors.Wrapf(err, "getMissionFITS mission %s", missionID)
	}

	return resp.ToPictures(missionID), nil
}

// TestConnection checks that the API endpoint is reachable by fetching
// a session token. It does not authenticate.
func (c *Client) TestConnection(ctx context.Context) error {
	return c.generateSessionToken(ctx)
}
