package qx

import (
	"fmt"
	"strings"
)

// resolution is the per-call state threaded through the pipeline. It is
// created by Resolve and discarded when it returns.
type resolution struct {
	sql       string
	queryName string
	fields    []Field // declared table, in declaration order
	resolved  []Field // fields taking part as parameters
	optionals []optional
}

// stage is one step of the pipeline.
type stage struct {
	name string
	run  func(r *Resolver, res *resolution) error
}

// pipeline lists the stages in the order they must run: later stages assume
// the tokens handled by earlier ones are resolved or absent.
var pipeline = []stage{
	{"optional", (*Resolver).resolveOptional},
	{"orderBy", (*Resolver).resolveOrderBy},
	{"join", (*Resolver).resolveJoins},
	{"where", (*Resolver).resolveWhere},
	{"offset", (*Resolver).resolveOffset},
	{"strip", func(_ *Resolver, res *resolution) error {
		res.sql = strip(res.sql)
		return nil
	}},
}

// resolveFields validates the field table of params and selects the fields
// taking part in the query: those with an explicit parameter role and those
// the template references by name.
func resolveFields(params Params, names []string, allowUnbound bool) (fields, resolved []Field, err error) {
	if isNil(params) {
		return nil, nil, fmt.Errorf("%w: nil parameters", ErrConfiguration)
	}

	fields = params.QueryFields()
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	declared := make(map[string]bool, len(fields))
	offsets := 0
	for _, f := range fields {
		if f.Name == "" {
			return nil, nil, fmt.Errorf("%w: %s has a field without a name", ErrConfiguration, queryName(params))
		}
		key := strings.ToLower(f.Name)
		if declared[key] {
			return nil, nil, fmt.Errorf("%w: duplicate field %q in %s", ErrConfiguration, f.Name, queryName(params))
		}
		declared[key] = true

		if err := validateField(f); err != nil {
			return nil, nil, err
		}
		if f.Roles.Has(RoleOffset) {
			offsets++
		}

		if f.Roles&includeRoles != 0 || wanted[key] {
			resolved = append(resolved, f)
		}
	}
	if offsets > 1 {
		return nil, nil, fmt.Errorf("%w: %s declares %d offset fields", ErrConfiguration, queryName(params), offsets)
	}

	if !allowUnbound {
		for _, n := range names {
			if !declared[n] {
				return nil, nil, fmt.Errorf("%w: @%s has no field in %s", ErrConfiguration, n, queryName(params))
			}
		}
	}
	return fields, resolved, nil
}

// validateField checks the role payloads of f against its value.
func validateField(f Field) error {
	if f.Roles.Has(RoleOrderBy) && len(f.Sorts) == 0 {
		return fmt.Errorf("%w: order-by field %s has no sort cases", ErrConfiguration, f.Name)
	}
	if f.Roles.Has(RoleJoin) {
		if _, ok := boolValue(f.Value); !ok {
			return fmt.Errorf("%w: join field %s must be a bool, got %T", ErrConfiguration, f.Name, f.Value)
		}
	}
	if f.Roles.Has(RoleOffset) {
		if _, _, ok := intValue(f.Value); !ok {
			return fmt.Errorf("%w: offset field %s must be an integer, got %T", ErrConfiguration, f.Name, f.Value)
		}
	}
	return nil
}

// resolveOptional swaps every optional block marker for its content when all
// the parameters the block references are set, and removes it otherwise.
func (r *Resolver) resolveOptional(res *resolution) error {
	byName := make(map[string]Field, len(res.resolved))
	for _, f := range res.resolved {
		byName[strings.ToLower(f.Name)] = f
	}

	for _, opt := range res.optionals {
		include := true
		for _, n := range opt.names {
			f, ok := byName[n]
			if !ok {
				return fmt.Errorf("%w: optional criteria %q references @%s, which has no field in %s",
					ErrConfiguration, opt.content, n, res.queryName)
			}
			if !hasValue(f.Value) {
				include = false
			}
		}
		if include {
			res.sql = strings.ReplaceAll(res.sql, opt.token, opt.content)
		} else {
			res.sql = removeToken(res.sql, opt.token)
		}
	}
	return nil
}

// resolveOrderBy replaces {orderBy} with the expression of the sort case
// matching the first order-by field that has a value.
func (r *Resolver) resolveOrderBy(res *resolution) error {
	if !strings.Contains(res.sql, OrderByToken) {
		return nil
	}

	for _, f := range res.fields {
		if !f.Roles.Has(RoleOrderBy) || !hasValue(f.Value) {
			continue
		}
		for _, c := range f.Sorts {
			if sameValue(c.Match, f.Value) {
				res.sql = strings.ReplaceAll(res.sql, OrderByToken, c.SQL)
				return nil
			}
		}
		return fmt.Errorf("%w: order-by field %s of %s has no case for value %v",
			ErrTemplate, f.Name, res.queryName, f.Value)
	}
	return fmt.Errorf("%w: %s has an %s token but no order-by field with a value",
		ErrTemplate, res.queryName, OrderByToken)
}

// resolveJoins replaces {join} with the fragments of every join field whose
// value is true.
func (r *Resolver) resolveJoins(res *resolution) error {
	var joins []string
	for _, f := range res.fields {
		if !f.Roles.Has(RoleJoin) {
			continue
		}
		if on, _ := boolValue(f.Value); on {
			joins = append(joins, f.JoinSQL)
		}
	}
	if len(joins) == 0 {
		res.sql = removeToken(res.sql, JoinToken)
		return nil
	}
	res.sql = strings.ReplaceAll(res.sql, JoinToken, strings.Join(joins, r.config.JoinSeparator))
	return nil
}

// resolveWhere recognizes {where} and {andWhere} but substitutes nothing;
// both are removed by the stripper.
func (r *Resolver) resolveWhere(res *resolution) error {
	for _, token := range []string{WhereToken, AndWhereToken} {
		if strings.Contains(res.sql, token) {
			r.config.Logger.Debug("where token left for stripping", "query", res.queryName, "token", token)
		}
	}
	return nil
}

// resolveOffset replaces {offset} with the paging clause for the page held by
// the offset field. Without a page value the token is left for the stripper.
func (r *Resolver) resolveOffset(res *resolution) error {
	if !strings.Contains(res.sql, OffsetToken) {
		return nil
	}

	for _, f := range res.fields {
		if !f.Roles.Has(RoleOffset) {
			continue
		}
		page, ok, _ := intValue(f.Value)
		if !ok {
			return nil
		}
		size := f.Paging.Size
		if size <= 0 {
			size = r.config.PageSize
		}
		res.sql = strings.ReplaceAll(res.sql, OffsetToken, f.Paging.syntax(r.dialect, page, size))
		return nil
	}
	return nil
}

// strip removes every reserved token and optional block marker left in sql.
func strip(sql string) string {
	for _, token := range []string{OrderByToken, JoinToken, WhereToken, AndWhereToken, OffsetToken} {
		sql = removeToken(sql, token)
	}
	for {
		i := strings.Index(sql, optionalPrefix)
		if i < 0 {
			return sql
		}
		j := strings.IndexByte(sql[i:], '}')
		if j < 0 {
			return sql
		}
		sql = removeToken(sql, sql[i:i+j+1])
	}
}

// removeToken deletes every occurrence of token together with the spaces and
// tabs that follow it.
func removeToken(sql, token string) string {
	if !strings.Contains(sql, token) {
		return sql
	}
	var b strings.Builder
	b.Grow(len(sql))
	for {
		i := strings.Index(sql, token)
		if i < 0 {
			b.WriteString(sql)
			return b.String()
		}
		b.WriteString(sql[:i])
		sql = strings.TrimLeft(sql[i+len(token):], " \t")
	}
}

// collectBindParameters maps the name of every resolved field that has a
// value, except phrase fields, to its value.
func collectBindParameters(resolved []Field) P {
	out := make(P, len(resolved))
	for _, f := range resolved {
		if f.Roles.Has(RolePhrase) || !hasValue(f.Value) {
			continue
		}
		out[f.Name] = f.Value
	}
	return out
}
