// Package qx resolves SQL templates into executable SQL. A template is plain SQL with @name parameters, optional [[ ... ]] criteria blocks and the tokens {orderBy}, {join}, {where}, {andWhere} and {offset}; a parameters value declares its fields and their roles, and Resolve substitutes or strips every token and collects the bind parameters without a query builder or an ORM in the way.

package qx
