package session

import (
	"strings"
	"time"
)

// Credentials are the portal login.
type Credentials struct {
	Username string
	Password string
}

// Coordinates are typed verbatim into the map's coordinate finder.
type Coordinates struct {
	Latitude  string
	Longitude string
}

// Site holds the portal addresses and the CSS selectors of every element the
// workflow touches.
type Site struct {
	BaseURL   string
	LoginPath string
	MapPath   string

	UsernameField string
	PasswordField string
	LoginButton   string

	Question        string
	AnswerField     string
	ChallengeSubmit string
	// AuthMarker is only present once the user is signed in.
	AuthMarker string

	CoordinateControl string
	CoordinateField   string
	CoordinateInput   string
	CoordinateConfirm string
	OverlayClose      string
	ZoomIn            string
	MapSurface        string
	PopupEntry        string
}

// DefaultSite returns the selectors of the land-allocation portal.
func DefaultSite() Site {
	return Site{
		BaseURL:   "https://xn--80aaggvgieoeoa2bo7l.xn--p1ai",
		LoginPath: "/default/login",
		MapPath:   "/default/arctic-map",

		UsernameField: "#login",
		PasswordField: "#password",
		LoginButton:   "#loginByPwdButton",

		Question:        "#question",
		AnswerField:     "#answer",
		ChallengeSubmit: "#button-reqinfo-submit",
		AuthMarker:      ".cabinet__icon-myprofile-svg",

		CoordinateControl: ".coordinate-finder-control__coordinate-finder-control",
		CoordinateField:   ".coordinate-finder-control__coords",
		CoordinateInput:   "input",
		CoordinateConfirm: ".coordinate-finder-control__confirm",
		OverlayClose:      ".shared__btn-close",
		ZoomIn:            ".zoom-control__zoom-in",
		MapSurface:        ".ol-layer",
		PopupEntry:        ".ol-popup li",
	}
}

// LoginURL is BaseURL joined with LoginPath.
func (s Site) LoginURL() string {
	return strings.TrimRight(s.BaseURL, "/") + s.LoginPath
}

// MapURL is BaseURL joined with MapPath.
func (s Site) MapURL() string {
	return strings.TrimRight(s.BaseURL, "/") + s.MapPath
}

// Timing bounds every wait and fixes every settling delay.
type Timing struct {
	WaitTimeout     time.Duration
	PollInterval    time.Duration
	PageLoadTimeout time.Duration

	InputDelay    time.Duration
	ConfirmDelay  time.Duration
	OverlayDelay  time.Duration
	ZoomSteps     int
	ZoomDelay     time.Duration
	TileSettle    time.Duration
	PopupTimeout  time.Duration
	CaptureSettle time.Duration
}

// DefaultTiming matches the pace the portal needs to render map tiles.
func DefaultTiming() Timing {
	return Timing{
		WaitTimeout:     60 * time.Second,
		PollInterval:    500 * time.Millisecond,
		PageLoadTimeout: 15 * time.Second,

		InputDelay:    time.Second,
		ConfirmDelay:  5 * time.Second,
		OverlayDelay:  time.Second,
		ZoomSteps:     15,
		ZoomDelay:     time.Second,
		TileSettle:    60 * time.Second,
		PopupTimeout:  10 * time.Second,
		CaptureSettle: 10 * time.Second,
	}
}

// Options is everything a session needs besides the browser.
type Options struct {
	Site        Site
	Credentials Credentials
	Challenges  ChallengeTable
	Coordinates Coordinates
	// Area is matched as a suffix of the map popup entry labels.
	Area   string
	Timing Timing
}
