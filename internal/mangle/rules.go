package mangle

// Schema is the fixed Datalog program sweep evaluates against each
// run's graph snapshot: facts describing notes, outlinks, tag
// membership and entity ownership, and rules deriving the hygiene
// predicates sweep reports on (spec §4.F).
const Schema = `
Decl note(Path) bound [/string].
Decl outlink(Source, TargetKey, Line) bound [/string, /string, /number].
Decl tag_member(Tag, Path) bound [/string, /string].
Decl entity(Key, Path) bound [/string, /string].

Decl has_entity(Key) bound [/string].
has_entity(Key) :- entity(Key, _).

Decl dead_link(TargetKey, Source) bound [/string, /string].
dead_link(TargetKey, Source) :-
	outlink(Source, TargetKey, _),
	!has_entity(TargetKey).

Decl resolved_link(Source, OwnerPath) bound [/string, /string].
resolved_link(Source, OwnerPath) :-
	outlink(Source, Key, _),
	entity(Key, OwnerPath).

Decl backlink_count(Path, Count) bound [/string, /number].
backlink_count(Path, Count) :-
	resolved_link(_, Path) |>
	do fn:group_by(Path),
	let Count = fn:count().

Decl forward_count(Path, Count) bound [/string, /number].
forward_count(Path, Count) :-
	resolved_link(Path, _) |>
	do fn:group_by(Path),
	let Count = fn:count().

Decl linked(Path) bound [/string].
linked(Path) :- resolved_link(Path, _).
linked(Path) :- resolved_link(_, Path).

Decl orphan(Path) bound [/string].
orphan(Path) :- note(Path), !linked(Path).
`
