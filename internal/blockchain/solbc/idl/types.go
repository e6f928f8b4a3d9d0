// internal/blockchain/solbc/idl/types.go
package idl

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type - тип поля IDL: примитив или составной тип.
type Type struct {
	Primitive string
	Vec       *Type
	Option    *Type
	COption   *Type
	Array     *Type
	ArrayLen  int
	Defined   string
}

func (t Type) String() string {
	switch {
	case t.Primitive != "":
		return t.Primitive
	case t.Vec != nil:
		return "vec<" + t.Vec.String() + ">"
	case t.Option != nil:
		return "option<" + t.Option.String() + ">"
	case t.COption != nil:
		return "coption<" + t.COption.String() + ">"
	case t.Array != nil:
		return fmt.Sprintf("[%s; %d]", t.Array.String(), t.ArrayLen)
	case t.Defined != "":
		return t.Defined
	}
	return "unknown"
}

// UnmarshalJSON разбирает "u64", {"vec": ...}, {"option": ...}, {"coption": ...},
// {"array": [T, N]}, {"defined": "Name"} и {"defined": {"name": "Name"}}.
func (t *Type) UnmarshalJSON(data []byte) error {
	var prim string
	if err := json.Unmarshal(data, &prim); err == nil {
		t.Primitive = prim
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid IDL type %s", string(data))
	}

	if raw, ok := obj["vec"]; ok {
		t.Vec = new(Type)
		return json.Unmarshal(raw, t.Vec)
	}
	if raw, ok := obj["option"]; ok {
		t.Option = new(Type)
		return json.Unmarshal(raw, t.Option)
	}
	if raw, ok := obj["coption"]; ok {
		t.COption = new(Type)
		return json.Unmarshal(raw, t.COption)
	}
	if raw, ok := obj["array"]; ok {
		var parts []json.RawMessage
		if err := json.Unmarshal(raw, &parts); err != nil || len(parts) != 2 {
			return fmt.Errorf("invalid array type %s", string(raw))
		}
		t.Array = new(Type)
		if err := json.Unmarshal(parts[0], t.Array); err != nil {
			return err
		}
		if err := json.Unmarshal(parts[1], &t.ArrayLen); err != nil {
			return errors.New("generic array length is not supported")
		}
		return nil
	}
	if raw, ok := obj["defined"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			t.Defined = name
			return nil
		}
		var ref struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &ref); err != nil || ref.Name == "" {
			return fmt.Errorf("invalid defined type %s", string(raw))
		}
		t.Defined = ref.Name
		return nil
	}
	return fmt.Errorf("unsupported IDL type %s", string(data))
}

// MarshalJSON пишет тип в legacy-форме, чтобы локальный кэш читался обратно.
func (t Type) MarshalJSON() ([]byte, error) {
	switch {
	case t.Primitive != "":
		return json.Marshal(t.Primitive)
	case t.Vec != nil:
		return json.Marshal(map[string]*Type{"vec": t.Vec})
	case t.Option != nil:
		return json.Marshal(map[string]*Type{"option": t.Option})
	case t.COption != nil:
		return json.Marshal(map[string]*Type{"coption": t.COption})
	case t.Array != nil:
		return json.Marshal(map[string][]interface{}{"array": {t.Array, t.ArrayLen}})
	case t.Defined != "":
		return json.Marshal(map[string]string{"defined": t.Defined})
	}
	return nil, errors.New("empty IDL type")
}
