package events

import "strconv"

// Tag types used by the endpoint table.
const (
	TagEvent      = "Event"
	TagProfile    = "Profile"
	TagCategory   = "Category"
	TagUserEvents = "UserEvents"
	TagUser       = "User"
)

type Event struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	StartDate   string  `json:"startDate"`
	EndDate     string  `json:"endDate"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Description string  `json:"description,omitempty"`
	Avatar      string  `json:"avatar,omitempty"`
	CategoryID  int     `json:"categoryId,omitempty"`
}

type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Profile struct {
	ID           int     `json:"id"`
	FirstName    string  `json:"firstName"`
	LastName     string  `json:"lastName"`
	Telegram     string  `json:"telegram,omitempty"`
	Whatsapp     string  `json:"whatsapp,omitempty"`
	Avatar       string  `json:"avatar,omitempty"`
	IsAdmin      bool    `json:"isAdmin"`
	Events       []Event `json:"events,omitempty"`
	AccessToken  string  `json:"accessToken,omitempty"`
	RefreshToken string  `json:"refreshToken,omitempty"`
}

type User struct {
	ID        int    `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	IsAdmin   bool   `json:"isAdmin"`
	Blocked   bool   `json:"blocked"`
}

// Filter narrows the events list. Radius only applies together with both
// coordinates.
type Filter struct {
	CategoryID int      `json:"categoryId,omitempty"`
	Search     string   `json:"search,omitempty"`
	Radius     float64  `json:"radius,omitempty"`
	UserLat    *float64 `json:"userLat,omitempty"`
	UserLng    *float64 `json:"userLng,omitempty"`
}

type LoginRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
}

type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
	Telegram  string `json:"telegram,omitempty"`
	Whatsapp  string `json:"whatsapp,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
}

type RegisterResponse struct {
	Message string `json:"message"`
	UserID  int    `json:"userId"`
}

type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// EventInput is the body of event creation and update.
type EventInput struct {
	Name        string  `json:"name"`
	StartDate   string  `json:"startDate"`
	EndDate     string  `json:"endDate"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Description string  `json:"description,omitempty"`
	CategoryID  int     `json:"categoryId,omitempty"`
	Avatar      string  `json:"avatar,omitempty"`
}

type CreateEventResponse struct {
	Message string `json:"message"`
	EventID int    `json:"eventId"`
}

type UpdateEventArgs struct {
	ID   int        `json:"id"`
	Data EventInput `json:"data"`
}

func (a UpdateEventArgs) EntityID() string { return strconv.Itoa(a.ID) }

type ProfileInput struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Telegram  string `json:"telegram,omitempty"`
	Whatsapp  string `json:"whatsapp,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Password  string `json:"password,omitempty"`
}

type ToggleBlockArgs struct {
	UserID  int  `json:"userId"`
	Blocked bool `json:"blocked"`
}

func (a ToggleBlockArgs) EntityID() string { return strconv.Itoa(a.UserID) }

type MessageResponse struct {
	Message string `json:"message"`
}
