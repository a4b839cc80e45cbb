package schema

import "encoding/json"

// Unit statuses as the backend reports them.
const (
	UnitOnline  = "online"
	UnitOffline = "offline"
)

// Unit is a monitored unit. Attributes the console does not model are kept in
// Fields so that an update sends them back unchanged.
type Unit struct {
	ID     int64                      `json:"id"`
	Name   string                     `json:"name,omitempty"`
	Status string                     `json:"status"`
	Fields map[string]json.RawMessage `json:"-"`
}

type unitKnown struct {
	ID     int64  `json:"id"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status"`
}

// UnmarshalJSON decodes the modelled attributes and keeps the rest in Fields.
func (u *Unit) UnmarshalJSON(data []byte) error {
	var known unitKnown
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	delete(all, "id")
	delete(all, "name")
	delete(all, "status")
	*u = Unit{ID: known.ID, Name: known.Name, Status: known.Status}
	if len(all) > 0 {
		u.Fields = all
	}
	return nil
}

// MarshalJSON writes Fields alongside the modelled attributes, which win on conflict.
func (u Unit) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Fields)+3)
	for k, v := range u.Fields {
		out[k] = v
	}
	out["id"] = u.ID
	if u.Name != "" {
		out["name"] = u.Name
	}
	out["status"] = u.Status
	return json.Marshal(out)
}

// Profile is the signed-in user as the backend knows them.
type Profile struct {
	EntraID struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"entraID"`
}
