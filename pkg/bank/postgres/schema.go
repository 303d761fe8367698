package postgres

// Schema creates the tables backing the store. It is applied on startup when
// the tables don't already exist.
const Schema = `
	CREATE TABLE IF NOT EXISTS tokadapt__core_account(
		id SERIAL NOT NULL PRIMARY KEY,

		address TEXT NOT NULL,
		owner TEXT NOT NULL,
		lamports BIGINT NOT NULL CHECK (lamports >= 0),
		data BYTEA NOT NULL,
		version BIGINT NOT NULL,

		last_updated_at TIMESTAMP WITH TIME ZONE NOT NULL,

		CONSTRAINT tokadapt__core_account__uniq__address UNIQUE (address)
	);

	CREATE TABLE IF NOT EXISTS tokadapt__core_processedsignature(
		id SERIAL NOT NULL PRIMARY KEY,

		signature TEXT NOT NULL,

		created_at TIMESTAMP WITH TIME ZONE NOT NULL,

		CONSTRAINT tokadapt__core_processedsignature__uniq__signature UNIQUE (signature)
	);
`

// Used for testing ONLY
const schemaDestroy = `
	DROP TABLE tokadapt__core_account;
	DROP TABLE tokadapt__core_processedsignature;
`
