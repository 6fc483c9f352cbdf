package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create domain_events table: the durable event queue
			CREATE TABLE domain_events (
				id VARCHAR(255) PRIMARY KEY,
				org_id VARCHAR(255) NOT NULL,
				event_type VARCHAR(255) NOT NULL,
				event_source VARCHAR(255) NOT NULL DEFAULT '',
				payload JSONB,
				status VARCHAR(50) NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
				attempt_count INTEGER NOT NULL DEFAULT 0,
				correlation_id VARCHAR(255) NOT NULL DEFAULT '',
				causation_id VARCHAR(255) NOT NULL DEFAULT '',
				last_error TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				claimed_at TIMESTAMP WITH TIME ZONE,
				processed_at TIMESTAMP WITH TIME ZONE,
				failed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_domain_events_claim ON domain_events(status, created_at, id);
			CREATE INDEX idx_domain_events_correlation ON domain_events(org_id, correlation_id);
			CREATE INDEX idx_domain_events_org_created ON domain_events(org_id, created_at);

			-- Create automations table: trigger columns are flattened so
			-- matching can use an index instead of a JSONB scan
			CREATE TABLE automations (
				id VARCHAR(255) PRIMARY KEY,
				org_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT true,
				trigger_object_type VARCHAR(50) NOT NULL,
				trigger_from_status VARCHAR(50),
				trigger_to_status VARCHAR(50) NOT NULL,
				nodes JSONB NOT NULL DEFAULT '[]',
				created_by VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				last_triggered_at TIMESTAMP WITH TIME ZONE,
				trigger_count BIGINT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_automations_matching ON automations(org_id, trigger_object_type, is_active);
			CREATE INDEX idx_automations_org_created ON automations(org_id, created_at);

			-- Create executions table: no foreign key to automations, the
			-- audit log outlives deleted automations
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				org_id VARCHAR(255) NOT NULL,
				automation_id VARCHAR(255) NOT NULL,
				triggered_by VARCHAR(255) NOT NULL DEFAULT '',
				triggered_at TIMESTAMP WITH TIME ZONE NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('running', 'completed', 'failed', 'skipped')),
				nodes_executed JSONB NOT NULL DEFAULT '[]',
				execution_chain JSONB NOT NULL DEFAULT '[]',
				recursion_depth INTEGER NOT NULL DEFAULT 0,
				completed_at TIMESTAMP WITH TIME ZONE,
				error_message TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_executions_automation ON executions(org_id, automation_id, triggered_at);
			CREATE INDEX idx_executions_org_triggered ON executions(org_id, triggered_at);

			-- Create entities table: entity IDs come from the origin
			-- services, so rows are keyed per organization
			CREATE TABLE entities (
				org_id VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				entity_type VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL DEFAULT '',
				project_id VARCHAR(255) NOT NULL DEFAULT '',
				client_id VARCHAR(255) NOT NULL DEFAULT '',
				quote_id VARCHAR(255) NOT NULL DEFAULT '',
				completed_at TIMESTAMP WITH TIME ZONE,
				accepted_at TIMESTAMP WITH TIME ZONE,
				paid_at TIMESTAMP WITH TIME ZONE,
				fields JSONB,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (org_id, id)
			);

			CREATE INDEX idx_entities_type_status ON entities(org_id, entity_type, status);
		`,
	}
}
