package speedrun

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/sjson"
)

// ModeratorLevel is the privilege tier an account holds on a game
type ModeratorLevel int

const (
	LevelVerifier       ModeratorLevel = -1
	LevelModerator      ModeratorLevel = 0
	LevelSuperModerator ModeratorLevel = 1
)

// String returns a human readable level name
func (l ModeratorLevel) String() string {
	switch l {
	case LevelVerifier:
		return "verifier"
	case LevelModerator:
		return "moderator"
	case LevelSuperModerator:
		return "super-moderator"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Game is the game record returned by GetGameData
type Game struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Rules string `json:"rules"`
}

// Category is a run category of a game
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Rules    string `json:"rules"`
	Archived bool   `json:"archived"`

	raw []byte
}

// Level is an individual level of a game
type Level struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Rules    string `json:"rules"`
	Archived bool   `json:"archived"`

	raw []byte
}

// Variable is a run sub-category or annotation. CategoryID and LevelID are
// empty when unset.
type Variable struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CategoryID  string `json:"categoryId"`
	LevelID     string `json:"levelId"`
	Archived    bool   `json:"archived"`

	raw []byte
}

// Value is one choice of a Variable
type Value struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	VariableID string `json:"variableId"`
	Rules      string `json:"rules"`
	Archived   bool   `json:"archived"`

	raw []byte
}

// GameData is the full entity snapshot of one game
type GameData struct {
	Game       Game       `json:"game"`
	Categories []Category `json:"categories"`
	Levels     []Level    `json:"levels"`
	Variables  []Variable `json:"variables"`
	Values     []Value    `json:"values"`
}

// GameSettings is the editable settings document of a game. Only the rules
// are modelled; every other field is carried through untouched.
type GameSettings struct {
	Rules string `json:"rules"`

	raw []byte
}

// User is a public user record
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GameModerator links a user to a game they moderate
type GameModerator struct {
	GameID string         `json:"gameId"`
	UserID string         `json:"userId"`
	Level  ModeratorLevel `json:"level"`
}

// Session describes the account the client is authenticated as
type Session struct {
	SignedIn          bool            `json:"signedIn"`
	User              *User           `json:"user"`
	GameModeratorList []GameModerator `json:"gameModeratorList"`
}

// AuditLogEntry is one event of a game's change history
type AuditLogEntry struct {
	ID        string `json:"id"`
	Date      int64  `json:"date"`
	EventType string `json:"eventType"`
	ActorID   string `json:"actorId"`
	GameID    string `json:"gameId"`
}

// AuditLogList is one page of the audit log, newest first
type AuditLogList struct {
	AuditLogList []AuditLogEntry `json:"auditLogList"`
	UserList     []User          `json:"userList"`
}

// UserName returns the display name of the user with the given id.
func (l *AuditLogList) UserName(id string) (string, bool) {
	for _, u := range l.UserList {
		if u.ID == id {
			return u.Name, true
		}
	}
	return "", false
}

func (c *Category) UnmarshalJSON(data []byte) error {
	type plain Category
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Category(p)
	c.raw = append([]byte(nil), data...)
	return nil
}

func (c Category) MarshalJSON() ([]byte, error) {
	type plain Category
	if c.raw == nil {
		return json.Marshal(plain(c))
	}
	return patch(c.raw, field{"rules", c.Rules})
}

func (l *Level) UnmarshalJSON(data []byte) error {
	type plain Level
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = Level(p)
	l.raw = append([]byte(nil), data...)
	return nil
}

func (l Level) MarshalJSON() ([]byte, error) {
	type plain Level
	if l.raw == nil {
		return json.Marshal(plain(l))
	}
	return patch(l.raw, field{"rules", l.Rules})
}

func (v *Variable) UnmarshalJSON(data []byte) error {
	type plain Variable
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*v = Variable(p)
	v.raw = append([]byte(nil), data...)
	return nil
}

func (v Variable) MarshalJSON() ([]byte, error) {
	type plain Variable
	if v.raw == nil {
		return json.Marshal(plain(v))
	}
	return patch(v.raw, field{"description", v.Description})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	type plain Value
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*v = Value(p)
	v.raw = append([]byte(nil), data...)
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	type plain Value
	if v.raw == nil {
		return json.Marshal(plain(v))
	}
	return patch(v.raw, field{"rules", v.Rules})
}

func (s *GameSettings) UnmarshalJSON(data []byte) error {
	type plain GameSettings
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = GameSettings(p)
	s.raw = append([]byte(nil), data...)
	return nil
}

func (s GameSettings) MarshalJSON() ([]byte, error) {
	type plain GameSettings
	if s.raw == nil {
		return json.Marshal(plain(s))
	}
	return patch(s.raw, field{"rules", s.Rules})
}

type field struct {
	path  string
	value string
}

// patch writes the editable fields onto the document the server sent so
// that updates carry every field, modelled or not.
func patch(raw []byte, fields ...field) ([]byte, error) {
	out := append([]byte(nil), raw...)
	for _, f := range fields {
		var err error
		out, err = sjson.SetBytes(out, f.path, f.value)
		if err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", f.path, err)
		}
	}
	return out, nil
}

func (c Category) EntityID() string   { return c.ID }
func (c Category) EntityName() string { return c.Name }
func (l Level) EntityID() string      { return l.ID }
func (l Level) EntityName() string    { return l.Name }
func (v Variable) EntityID() string   { return v.ID }
func (v Variable) EntityName() string { return v.Name }
func (v Value) EntityID() string      { return v.ID }
func (v Value) EntityName() string    { return v.Name }
