package app

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"memoireai/pkg/domain"
)

const (
	maxLibraryDocs      = 10
	chatExcerptRunes    = 500
	draftExcerptRunes   = 800
	analysisInputRunes  = 10000
	structureInputRunes = 15000

	emptyLibrarySentinel  = "La bibliothèque est vide."
	unanalyzedSentinel    = "Contenu non analysé"
	analysisFailedMessage = "Le document a été uploadé, mais l'analyse initiale a échoué. Vous pouvez réessayer via le chat."
)

const analysisSystemPrompt = `Tu es un expert académique et un assistant de recherche rigoureux.
Ta mission est d'analyser des extraits de mémoires, thèses ou articles académiques.
Ton objectif est de fournir une analyse critique, constructive et pédagogique.

Directives:
1. Analyse la structure, la clarté, la pertinence des arguments et la qualité de la rédaction.
2. Identifie les points forts et les faiblesses.
3. Suggère des améliorations concrètes (reformulations, approfondissements, citations manquantes).
4. Adopte un ton professionnel, encourageant mais exigeant.
5. Si le texte contient des erreurs méthodologiques évidentes, signale-les avec tact.

Réponds toujours en format Markdown structuré.`

const draftSystemPrompt = "Tu es un rédacteur académique expert. Ta mission est de transformer une discussion informelle en un texte de mémoire structuré, cite les sources de la bibliothèque quand c'est pertinent."

const structureSystemPrompt = "Tu es un extracteur de structure académique. Réponds uniquement en JSON."

// truncateRunes bounds s to at most n runes. Counting runes keeps the cut
// from splitting multi-byte characters in accented French text.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// chatLibraryContext renders the student's document library for the mentor
// prompt. At most maxLibraryDocs entries, each analysis cut at 500 runes.
func chatLibraryContext(docs []domain.Document) string {
	if len(docs) == 0 {
		return emptyLibrarySentinel
	}
	if len(docs) > maxLibraryDocs {
		docs = docs[:maxLibraryDocs]
	}
	var b strings.Builder
	b.WriteString("RÉFÉRENCES DE LA BIBLIOTHÈQUE DE L'ÉTUDIANT :\n")
	for i, doc := range docs {
		if i > 0 {
			b.WriteString("\n")
		}
		excerpt := doc.AnalysisResult
		if excerpt == "" {
			excerpt = unanalyzedSentinel
		}
		fmt.Fprintf(&b, "- [ID:%s] %q : %s", doc.ID, doc.Title, truncateRunes(excerpt, chatExcerptRunes))
	}
	return b.String()
}

// draftLibraryContext is the sources block for draft generation. Longer
// excerpts than chat, no document IDs, and an empty string when the
// library has nothing.
func draftLibraryContext(docs []domain.Document) string {
	if len(docs) == 0 {
		return ""
	}
	if len(docs) > maxLibraryDocs {
		docs = docs[:maxLibraryDocs]
	}
	var b strings.Builder
	b.WriteString("BIBLIOTHÈQUE (SOURCES) :\n")
	for i, doc := range docs {
		if i > 0 {
			b.WriteString("\n")
		}
		excerpt := doc.AnalysisResult
		if excerpt == "" {
			excerpt = unanalyzedSentinel
		}
		fmt.Fprintf(&b, "- %q : %s", doc.Title, truncateRunes(excerpt, draftExcerptRunes))
	}
	return b.String()
}

func historyLines(messages []domain.SectionMessage) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, m.Role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// mentorSystemPrompt is the proactive mentor persona. The template is a
// dead example: any fact the student supplies silently overrides it, its
// coherence is never questioned, and the mentor asks one question per turn.
func mentorSystemPrompt(sectionTitle, projectTitle, libraryContext string) string {
	return fmt.Sprintf(`Tu es un Mentor IA spécialisé dans l'ACCOMPAGNEMENT PROACTIF.
Ton rôle est de construire le mémoire de l'étudiant à partir d'un moule vide.

RÈGLES D'OR DE COMPORTEMENT (STRICTES) :
1. LE MODÈLE EST UN FANTÔME (GHOST) : Tout ce qui vient du template (ex: "%s" ou "Cabinet RCG") n'est qu'un EXEMPLE MORT. Il n'a aucune valeur de vérité.
2. PRIORITÉ ABSOLUE À L'UTILISATEUR : Si l'étudiant te donne une information (ex: "Sarl-Boo"), elle remplace IMMÉDIATEMENT et SILENCIEUSEMENT toute donnée contradictoire du modèle.
3. INTERDICTION DE QUESTIONNER LA COHÉRENCE : Ne demande JAMAIS de justifier le lien entre le modèle et la réalité de l'étudiant. Ne dis jamais "Cela soulève des questions sur la pertinence".
4. POSTURE DE MAÇON : Tu es là pour poser des briques. SI l'utilisateur donne une info, dis "C'est noté, on adapte pour [Son Info]" et pose tout de suite la question suivante pour personnaliser davantage la section.
5. CONCISION & FLUIDITÉ : Ne fais pas de longs rappels historiques. Salue l'utilisateur brièvement et sois proactif dans la suite de l'entretien.
6. ÉTAPE PAR ÉTAPE : Pose 1 SEULE QUESTION à la fois pour ne pas submerger l'utilisateur.

Section actuelle : "%s"
Projet : "%s"
Bibliothèque de sources : %s`, sectionTitle, sectionTitle, projectTitle, libraryContext)
}

// mentorUserPrompt renders the running discussion plus the student's
// latest message. The history already contains the persisted new turn.
func mentorUserPrompt(history []domain.SectionMessage, message string) string {
	return fmt.Sprintf("Historique de la discussion pour cette section :\n%s\n\nÉtudiant: %s", historyLines(history), message)
}

// draftUserPrompt asks the model to rewrite the discussion into a first
// academic draft for the section.
func draftUserPrompt(sectionTitle, projectTitle, libraryContext string, history []domain.SectionMessage) string {
	return fmt.Sprintf(`Basé sur la discussion suivante, rédige un premier jet (draft) académique pour la section "%s" du mémoire "%s".
Respecte le ton académique, les idées de l'étudiant, et structure bien le texte.

RÈGLES DE RÉDACTION :
1. ADAPTATION TOTALE : Si la discussion indique que les informations réelles (ex: nom de l'entreprise) divergent du modèle initial, utilise UNIQUEMENT les informations de l'étudiant.
2. EFFACEMENT DES PLACEHOLDERS : Ne mentionne jamais les données du template (ex: RCG) si l'étudiant a fourni ses propres données (ex: Sarl-Boo).
4. CITATION : Utilise le contexte de la bibliothèque ci-dessous pour sourcer tes arguments. Cite les documents pertinents.

%s

Discussion :
%s`, sectionTitle, projectTitle, libraryContext, historyLines(history))
}

func analysisUserPrompt(text string) string {
	return "Analyse ce texte:\n" + truncateRunes(text, analysisInputRunes)
}

func structureUserPrompt(text string) string {
	return fmt.Sprintf(`Analyse ce mémoire et extrait son plan (chapitres principaux).
Réponds uniquement avec un tableau JSON de ce format : [{"id": "identifiant_unique", "title": "Titre du chapitre"}].
Texte du mémoire :
%s`, truncateRunes(text, structureInputRunes))
}

var structureJSONPattern = regexp.MustCompile(`(?s)\[.*\]`)

// parseStructure extracts a section plan from a model reply. The reply
// often wraps the JSON array in prose, so the first bracketed span is
// matched and decoded. Returns false when nothing usable is found.
func parseStructure(reply string) ([]domain.SectionMetadata, bool) {
	match := structureJSONPattern.FindString(reply)
	if match == "" {
		return nil, false
	}
	var raw []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(match), &raw); err != nil || len(raw) == 0 {
		return nil, false
	}
	structure := make([]domain.SectionMetadata, 0, len(raw))
	for i, s := range raw {
		id := s.ID
		if id == "" {
			id = fmt.Sprintf("section_%d", i)
		}
		structure = append(structure, domain.SectionMetadata{
			ID:     id,
			Title:  s.Title,
			Order:  i + 1,
			Status: domain.SectionPending,
		})
	}
	return structure, true
}
