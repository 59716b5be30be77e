package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func smells(m dsl.Matcher) {
	// Two guards returning the same value can be merged.
	m.Match(`if $c1 { return $ret }; if $c2 { return $ret }`).
		Report(`two consecutive guards return the same value; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { return $ret }`)

	m.Match(`if $c1 { continue }; if $c2 { continue }`).
		Report(`two consecutive continues; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { continue }`)

	m.Match(`for $*_ { for $*_ { $*_ } }`).
		Report(`nested for-loop; consider extracting inner loop logic or reducing algorithmic complexity`)
}

// storage flags domain queries that drop the request context.
func storage(m dsl.Matcher) {
	m.Match(`$db.Query($*args)`).
		Where((m["db"].Type.Is(`*sql.DB`) || m["db"].Type.Is(`*sql.Tx`)) && m.File().PkgPath.Matches(`/internal/domain/`)).
		Report(`use QueryContext so cancellation reaches SQLite`).
		Suggest(`$db.QueryContext(ctx, $args)`)

	m.Match(`$db.QueryRow($*args)`).
		Where((m["db"].Type.Is(`*sql.DB`) || m["db"].Type.Is(`*sql.Tx`)) && m.File().PkgPath.Matches(`/internal/domain/`)).
		Report(`use QueryRowContext so cancellation reaches SQLite`).
		Suggest(`$db.QueryRowContext(ctx, $args)`)

	m.Match(`$db.Exec($*args)`).
		Where((m["db"].Type.Is(`*sql.DB`) || m["db"].Type.Is(`*sql.Tx`)) && m.File().PkgPath.Matches(`/internal/domain/`) &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report(`use ExecContext so cancellation reaches SQLite`).
		Suggest(`$db.ExecContext(ctx, $args)`)
}

// logging keeps process output on the structured logger.
func logging(m dsl.Matcher) {
	m.Match(`fmt.Println($*_)`, `fmt.Printf($*_)`, `log.Printf($*_)`, `log.Println($*_)`).
		Where(m.File().PkgPath.Matches(`/internal/`)).
		Report(`log through *zap.Logger instead of printing to stdout`)

	m.Match(`$l.Error($msg, zap.Any("error", $err))`).
		Report(`use zap.Error($err) for error fields`).
		Suggest(`$l.Error($msg, zap.Error($err))`)
}
