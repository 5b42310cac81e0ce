package tarantool

import (
	"fmt"

	"github.com/tarantool/go-tarantool"
)

// Tuple layouts. Lua indexes are 1-based, so field N below is t[N+1].
//
//	polls: id, question, options, counts, total, is_active, created_at, expires_at
//	votes: poll_id, voter_id, option_index, origin_id, device_fingerprint, created_at
//
// Timestamps are unix milliseconds so they stay exact as Lua numbers.
const bootstrapLua = `
box.schema.space.create('polls', {
    if_not_exists = true,
    format = {
        {name = 'id', type = 'string'},
        {name = 'question', type = 'string'},
        {name = 'options', type = 'array'},
        {name = 'counts', type = 'array'},
        {name = 'total', type = 'unsigned'},
        {name = 'is_active', type = 'boolean'},
        {name = 'created_at', type = 'integer'},
        {name = 'expires_at', type = 'integer'},
    },
})
box.space.polls:create_index('primary', {parts = {'id'}, if_not_exists = true})
box.space.polls:create_index('expires', {parts = {'expires_at'}, unique = false, if_not_exists = true})

box.schema.space.create('votes', {
    if_not_exists = true,
    format = {
        {name = 'poll_id', type = 'string'},
        {name = 'voter_id', type = 'string'},
        {name = 'option_index', type = 'unsigned'},
        {name = 'origin_id', type = 'string'},
        {name = 'device_fingerprint', type = 'string'},
        {name = 'created_at', type = 'integer'},
    },
})
box.space.votes:create_index('primary', {parts = {'poll_id', 'voter_id'}, if_not_exists = true})
box.space.votes:create_index('origin', {parts = {'poll_id', 'origin_id'}, unique = false, if_not_exists = true})
return true
`

// Bootstrap creates the spaces and indexes if they do not exist yet.
func Bootstrap(conn *tarantool.Connection) error {
	if _, err := conn.Eval(bootstrapLua, []interface{}{}); err != nil {
		return fmt.Errorf("tarantool bootstrap: %w", err)
	}
	return nil
}
