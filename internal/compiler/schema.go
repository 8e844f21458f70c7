package compiler

// templateSchema constrains the shape of a template file. Expressions are
// left open here and checked during compilation, where their positions are
// reported precisely.
const templateSchema = `
#Template: {
	tables: [...#Table]
}

#Table: {
	name:     =~"^[A-Za-z_][A-Za-z0-9_]*$"
	columns:  [...#Column]
	derived?: [...#Derived]
}

#Column: {
	name:  string & !=""
	type?: string
	expr:  _
}

#Derived: {
	table: string
	count: _
}
`
