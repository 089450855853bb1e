package manifest

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
)

// schemaSource constrains quadra.toml. Definitions are closed, so unknown
// keys are rejected.
const schemaSource = `
#Cells: int & >0 & <=67108864

#Manifest: {
	project: {
		name:     =~"^[a-z][a-z0-9_-]*$"
		version?: =~"^[0-9]+\\.[0-9]+\\.[0-9]+"
	}
	source?: {
		dirs?: [...string]
		entry?: string
	}
	memory?: {
		global?: #Cells
		local?:  #Cells
		temp?:   #Cells
		stack?:  #Cells
	}
	optimizer?: {
		enabled?:            bool
		"jump-threading"?:   bool
		"constant-folding"?: bool
		"max-rounds"?:       int & >0 & <=1024
	}
	vm?: {
		"max-steps"?: int & >=0
		profile?:     bool
		natives?: [...string]
	}
	image?: {
		output?: string
		cache?:  string
	}
	server?: {
		listen?:      string
		"max-steps"?: int & >=0
	}
}
`

// Validate checks raw quadra.toml contents against the schema.
func Validate(data []byte) error {
	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return err
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Manifest"))

	v := def.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}
