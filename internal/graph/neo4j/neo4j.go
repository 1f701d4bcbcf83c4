package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/CihadCengiz/prompt-generator/internal/graph"
)

const (
	recordFileCypher = "MERGE (r:Repo {tag: $repo}) " +
		"MERGE (c:Commit {repo: $repo, hash: $commit}) " +
		"MERGE (r)-[:HAS_COMMIT]->(c) " +
		"MERGE (f:File {repo: $repo, commit: $commit, path: $path}) " +
		"SET f.file_hash = $file_hash, f.content_hash = $content_hash, f.chunks = $chunks " +
		"MERGE (c)-[:TOUCHES]->(f)"

	forgetCommitCypher = "MATCH (c:Commit {repo: $repo, hash: $commit}) " +
		"OPTIONAL MATCH (c)-[:TOUCHES]->(f:File) " +
		"DETACH DELETE f, c"

	forgetFilesCypher = "MATCH (:Commit {repo: $repo, hash: $commit})-[:TOUCHES]->(f:File) " +
		"WHERE f.path IN $paths " +
		"DETACH DELETE f"

	commitFilesCypher = "MATCH (:Commit {repo: $repo, hash: $commit})-[:TOUCHES]->(f:File) " +
		"RETURN f.path AS path ORDER BY path"
)

// Recorder implements graph.Recorder using Neo4j.
type Recorder struct {
	driver neo4j.DriverWithContext
}

// New connects and verifies connectivity.
func New(ctx context.Context, uri, username, password string) (*Recorder, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Recorder{driver: driver}, nil
}

func (r *Recorder) write(ctx context.Context, cypher string, params map[string]any) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, cypher, params)
		return nil, err
	})
	return err
}

func (r *Recorder) RecordFile(ctx context.Context, fv graph.FileVersion) error {
	err := r.write(ctx, recordFileCypher, map[string]any{
		"repo":         fv.RepoTag,
		"commit":       fv.CommitHash,
		"path":         fv.FilePath,
		"file_hash":    fv.FileHash,
		"content_hash": fv.ContentHash,
		"chunks":       fv.Chunks,
	})
	if err != nil {
		return fmt.Errorf("record file %s: %w", fv.FilePath, err)
	}
	return nil
}

func (r *Recorder) ForgetCommit(ctx context.Context, repoTag, commitHash string) error {
	err := r.write(ctx, forgetCommitCypher, map[string]any{"repo": repoTag, "commit": commitHash})
	if err != nil {
		return fmt.Errorf("forget commit %s: %w", commitHash, err)
	}
	return nil
}

func (r *Recorder) ForgetFiles(ctx context.Context, repoTag, commitHash string, paths []string) error {
	err := r.write(ctx, forgetFilesCypher, map[string]any{"repo": repoTag, "commit": commitHash, "paths": paths})
	if err != nil {
		return fmt.Errorf("forget files in %s: %w", commitHash, err)
	}
	return nil
}

func (r *Recorder) CommitFiles(ctx context.Context, repoTag, commitHash string) ([]string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, commitFilesCypher, map[string]any{"repo": repoTag, "commit": commitHash})
		if err != nil {
			return nil, err
		}
		var paths []string
		for records.Next(ctx) {
			p, _ := records.Record().Get("path")
			if s, ok := p.(string); ok {
				paths = append(paths, s)
			}
		}
		return paths, records.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("commit files %s: %w", commitHash, err)
	}
	paths, _ := result.([]string)
	return paths, nil
}

func (r *Recorder) Ping(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

func (r *Recorder) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ graph.Recorder = (*Recorder)(nil)
